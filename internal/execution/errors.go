package execution

import "errors"

var (
	// ErrOrderTooSmall means the order notional is below the configured
	// minimum order value.
	ErrOrderTooSmall = errors.New("order below minimum notional")

	// ErrPriceUnavailable means the ticker returned no usable price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrQtyZeroAfterRounding means step rounding reduced the quantity to zero.
	ErrQtyZeroAfterRounding = errors.New("quantity is zero after step rounding")

	// ErrNoBaseAsset means there is no free base balance to sell.
	ErrNoBaseAsset = errors.New("no base asset balance to sell")
)
