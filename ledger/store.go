package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

// Store persists ledger balances in pebble. Keys are
// "balance/<trader>/<asset>"; values are the JSON balance record.
type Store struct {
	db *pebble.DB
}

func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open ledger store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveBalance(trader, asset string, available, escrowed int64) error {
	data, err := json.Marshal(balance{Available: available, Escrowed: escrowed})
	if err != nil {
		return err
	}
	return s.db.Set(balanceKey(trader, asset), data, pebble.Sync)
}

// LoadAll streams every stored balance into fn.
func (s *Store) LoadAll(fn func(trader, asset string, available, escrowed int64)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("balance/"),
		UpperBound: []byte("balance0"), // '0' sorts just past '/'
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		trader, asset, err := parseBalanceKey(iter.Key())
		if err != nil {
			return err
		}
		var b balance
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return fmt.Errorf("corrupt balance record %q: %w", iter.Key(), err)
		}
		fn(trader, asset, b.Available, b.Escrowed)
	}
	return iter.Error()
}

func balanceKey(trader, asset string) []byte {
	return []byte("balance/" + trader + "/" + asset)
}

func parseBalanceKey(key []byte) (trader, asset string, err error) {
	parts := strings.Split(string(key), "/")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed balance key %q", key)
	}
	return parts[1], parts[2], nil
}
