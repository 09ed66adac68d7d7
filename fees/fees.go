// Package fees converts trade notionals into fee and net proceeds amounts.
package fees

import "fmt"

// MaxBps caps the fee rate at 100%.
const MaxBps = 10_000

// Calculator computes basis-point fees on quote-denominated notionals.
// Fees are always paid in the quote asset, out of the seller's proceeds.
type Calculator struct {
	feeBps int64
}

func NewCalculator(feeBps int64) (*Calculator, error) {
	if feeBps < 0 || feeBps > MaxBps {
		return nil, fmt.Errorf("fee rate %d bps out of range [0, %d]", feeBps, MaxBps)
	}
	return &Calculator{feeBps: feeBps}, nil
}

func (c *Calculator) Bps() int64 { return c.feeBps }

// Fee returns floor(notional * feeBps / 10000). Truncation means fractional
// remainders stay with the trader, never over-charging.
func (c *Calculator) Fee(notional int64) int64 {
	return notional * c.feeBps / MaxBps
}

// Split returns the fee and the net proceeds for the seller.
// fee + net == notional for every input.
func (c *Calculator) Split(notional int64) (fee, net int64) {
	fee = c.Fee(notional)
	return fee, notional - fee
}
