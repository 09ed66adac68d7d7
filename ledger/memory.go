package ledger

import "sync"

type balance struct {
	Available int64 `json:"available"`
	Escrowed  int64 `json:"escrowed"`
}

// MemLedger is the in-process Ledger implementation: per-trader balances,
// per-asset custody pool, optionally persisted through a Store.
type MemLedger struct {
	mu       sync.Mutex
	accounts map[string]map[string]*balance // trader -> asset -> balance
	pool     map[string]int64               // asset -> custody pool

	store *Store // nil means memory-only (tests)
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		accounts: make(map[string]map[string]*balance),
		pool:     make(map[string]int64),
	}
}

// NewPersistentLedger restores balances from the store and persists every
// mutation back to it.
func NewPersistentLedger(store *Store) (*MemLedger, error) {
	l := NewMemLedger()
	l.store = store

	err := store.LoadAll(func(trader, asset string, available, escrowed int64) {
		l.balanceFor(trader, asset).Available = available
		l.balanceFor(trader, asset).Escrowed = escrowed
		l.pool[asset] += escrowed
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Deposit funds a trader's available balance. Not part of the engine-facing
// contract; used by the API and by operators.
func (l *MemLedger) Deposit(trader, asset string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceFor(trader, asset)
	b.Available += amount
	return l.persist(trader, asset, b)
}

// Withdraw removes available (not escrowed) funds.
func (l *MemLedger) Withdraw(trader, asset string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceFor(trader, asset)
	if b.Available < amount {
		return ErrInsufficientFunds
	}
	b.Available -= amount
	return l.persist(trader, asset, b)
}

func (l *MemLedger) Escrow(trader, asset string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceFor(trader, asset)
	if b.Available < amount {
		return ErrInsufficientFunds
	}
	b.Available -= amount
	b.Escrowed += amount
	l.pool[asset] += amount
	return l.persist(trader, asset, b)
}

func (l *MemLedger) Spend(trader, asset string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceFor(trader, asset)
	if b.Escrowed < amount {
		return ErrInsufficientEscrow
	}
	// the funds stay in the custody pool until Transfer pays them out
	b.Escrowed -= amount
	return l.persist(trader, asset, b)
}

func (l *MemLedger) Release(trader, asset string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceFor(trader, asset)
	if b.Escrowed < amount {
		return ErrInsufficientEscrow
	}
	if l.pool[asset] < amount {
		return ErrInsufficientPool
	}
	b.Escrowed -= amount
	b.Available += amount
	l.pool[asset] -= amount
	return l.persist(trader, asset, b)
}

func (l *MemLedger) Transfer(asset, to string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool[asset] < amount {
		return ErrInsufficientPool
	}
	l.pool[asset] -= amount
	b := l.balanceFor(to, asset)
	b.Available += amount
	return l.persist(to, asset, b)
}

// Balance reports a trader's available and escrowed amounts for an asset.
func (l *MemLedger) Balance(trader, asset string) (available, escrowed int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	assets, ok := l.accounts[trader]
	if !ok {
		return 0, 0
	}
	b, ok := assets[asset]
	if !ok {
		return 0, 0
	}
	return b.Available, b.Escrowed
}

// ForEachEscrow visits every non-zero escrowed balance. Used by startup
// reconciliation against the replayed book.
func (l *MemLedger) ForEachEscrow(fn func(trader, asset string, amount int64)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for trader, assets := range l.accounts {
		for asset, b := range assets {
			if b.Escrowed != 0 {
				fn(trader, asset, b.Escrowed)
			}
		}
	}
}

// Pool reports the custody pool for an asset.
func (l *MemLedger) Pool(asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool[asset]
}

func (l *MemLedger) balanceFor(trader, asset string) *balance {
	assets, ok := l.accounts[trader]
	if !ok {
		assets = make(map[string]*balance)
		l.accounts[trader] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = &balance{}
		assets[asset] = b
	}
	return b
}

func (l *MemLedger) persist(trader, asset string, b *balance) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveBalance(trader, asset, b.Available, b.Escrowed)
}
