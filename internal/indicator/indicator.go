// Package indicator provides streaming technical indicator calculations over
// close prices. Each indicator is O(1) per update and reports NaN until its
// window is filled.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g. "EMA_9", "RSI_14").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(price float64)

	// Value returns the current value, NaN while not Ready.
	Value() float64

	// Ready returns true once enough data has been accumulated.
	Ready() bool
}
