package engine

import (
	"math/big"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Price returns the order's limit price in collateral units per token unit
// as an exact rational. Callers must not hand in orders with a zero amount
// on the token side; submission validation rejects those.
func Price(o *domain.Order) *big.Rat {
	if o.Side == domain.OrderSideBuy {
		return new(big.Rat).SetFrac(o.MakerAmount, o.TakerAmount)
	}
	return new(big.Rat).SetFrac(o.TakerAmount, o.MakerAmount)
}

// Remaining returns the order's unfilled quantity in token units. A buy
// acquires TakerAmount tokens, a sell disposes of MakerAmount tokens;
// FilledAmount counts tokens on both sides.
func Remaining(o *domain.Order) *big.Int {
	total := o.TakerAmount
	if o.Side == domain.OrderSideSell {
		total = o.MakerAmount
	}
	return new(big.Int).Sub(total, o.FilledAmount)
}

// settlementValue prices fill tokens at the maker's limit, truncating the
// division so makers never receive (buy) or pay (sell) a rounded-up amount.
func settlementValue(fill *big.Int, maker *domain.Order) *big.Int {
	v := new(big.Int)
	if maker.Side == domain.OrderSideSell {
		v.Mul(fill, maker.TakerAmount)
		return v.Quo(v, maker.MakerAmount)
	}
	v.Mul(fill, maker.MakerAmount)
	return v.Quo(v, maker.TakerAmount)
}

// protocolFee charges feeBps basis points on the collateral leg, truncated.
func protocolFee(collateral *big.Int, feeBps int64) *big.Int {
	f := new(big.Int).Mul(collateral, big.NewInt(feeBps))
	return f.Quo(f, big.NewInt(10000))
}
