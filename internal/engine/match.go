// Package engine implements the deterministic matching core: price-time
// priority crossing of limit orders on a single outcome token, and order
// book aggregation. The engine is pure computation; it reads and writes no
// state, so callers decide how matches become fills.
//
// All quantity and price arithmetic is exact. Quantities are big.Int token
// units, prices are big.Rat ratios of the signed amounts. Floats never
// enter the match path.
package engine

import (
	"math/big"
	"sort"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

type bookEntry struct {
	order *domain.Order
	price *big.Rat
}

// Match crosses the incoming taker order against the resting set and
// returns the fills that would result, in execution order. The resting
// slice holds opposite-side open or partial orders on the same token; the
// engine sorts them into priority itself, so callers only need a stable id
// order from the store.
//
// Each fill executes at the maker's price. The taker pays feeBps basis
// points of the collateral leg on every fill. Match never mutates its
// inputs: filled amounts and statuses move only when the caller persists
// the result.
func Match(taker *domain.Order, resting []domain.Order, feeBps int64) []domain.Match {
	remaining := Remaining(taker)
	if remaining.Sign() <= 0 {
		return nil
	}
	takerPrice := Price(taker)
	book := sortResting(resting, taker.Side)

	var matches []domain.Match
	for _, entry := range book {
		if remaining.Sign() <= 0 {
			break
		}
		// Priority order means the first non-crossing maker ends the walk.
		if !crossesAt(takerPrice, entry.price, taker.Side) {
			break
		}
		makerRemaining := Remaining(entry.order)
		if makerRemaining.Sign() <= 0 {
			continue
		}
		fill := new(big.Int).Set(remaining)
		if makerRemaining.Cmp(fill) < 0 {
			fill.Set(makerRemaining)
		}
		collateral := settlementValue(fill, entry.order)
		matches = append(matches, domain.Match{
			MakerOrderID:     entry.order.ID,
			Maker:            entry.order.Maker,
			Taker:            taker.Maker,
			TokenAmount:      fill,
			CollateralAmount: collateral,
			Fee:              protocolFee(collateral, feeBps),
			MakerExhausted:   fill.Cmp(makerRemaining) >= 0,
			TakerExhausted:   fill.Cmp(remaining) >= 0,
		})
		remaining.Sub(remaining, fill)
	}
	return matches
}

// crossesAt reports whether a taker at takerPrice trades with a maker at
// makerPrice: a buyer pays up to its limit, a seller accepts down to its
// limit.
func crossesAt(takerPrice, makerPrice *big.Rat, takerSide domain.OrderSide) bool {
	if takerSide == domain.OrderSideBuy {
		return takerPrice.Cmp(makerPrice) >= 0
	}
	return takerPrice.Cmp(makerPrice) <= 0
}

// sortResting orders the book for the taker: cheapest asks first for a
// buyer, highest bids first for a seller, oldest id first within a price.
func sortResting(resting []domain.Order, takerSide domain.OrderSide) []bookEntry {
	entries := make([]bookEntry, 0, len(resting))
	for i := range resting {
		entries = append(entries, bookEntry{order: &resting[i], price: Price(&resting[i])})
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].price.Cmp(entries[j].price); c != 0 {
			if takerSide == domain.OrderSideBuy {
				return c < 0
			}
			return c > 0
		}
		return entries[i].order.ID < entries[j].order.ID
	})
	return entries
}
