package domain

import "github.com/shopspring/decimal"

// Reservation is the amount of one symbol locked by a pending order.
type Reservation struct {
	Symbol string
	Amount decimal.Decimal
}

// ReservationFor maps an order's side, symbol, size and price to the asset
// row and amount it reserves. A BUY locks size × price of cash; a SELL locks
// size units of the symbol being sold.
func ReservationFor(side OrderSide, symbol string, size, price decimal.Decimal) Reservation {
	if side == OrderSideBuy {
		return Reservation{Symbol: CashSymbol, Amount: size.Mul(price)}
	}
	return Reservation{Symbol: symbol, Amount: size}
}
