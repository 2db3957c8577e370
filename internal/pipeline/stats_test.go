package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

func statsMarket(conditionID, yesToken, noToken string) domain.Market {
	return domain.Market{
		ConditionID: conditionID,
		YesTokenID:  yesToken,
		NoTokenID:   noToken,
		Title:       "Market " + conditionID,
		Status:      domain.MarketStatusActive,
	}
}

func midBook(tokenID, mid string) domain.BookSnapshot {
	m := decimal.RequireFromString(mid)
	return domain.BookSnapshot{TokenID: tokenID, Mid: &m, Timestamp: time.Now().UTC()}
}

func TestStatsRefresh(t *testing.T) {
	newUpdater := func(markets *fakeStatsMarkets, books *fakeBookSource, vols *fakeVolumes) (*StatsUpdater, *fakeStatsCache, *fakeBus) {
		cache := newFakeStatsCache()
		bus := newFakeBus()
		return NewStatsUpdater(markets, vols, books, cache, bus, time.Hour, discardLogger()), cache, bus
	}

	t.Run("derives prices and volumes", func(t *testing.T) {
		markets := newFakeStatsMarkets(statsMarket("0xc1", "101", "202"))
		books := &fakeBookSource{snaps: map[string]domain.BookSnapshot{
			"101": midBook("101", "0.425"),
		}}
		vols := &fakeVolumes{
			total:  map[string]*big.Int{"0xc1": big.NewInt(4200000000)},
			recent: map[string]*big.Int{"0xc1": big.NewInt(150000000)},
		}
		updater, cache, bus := newUpdater(markets, books, vols)

		require.NoError(t, updater.refresh(context.Background()))

		st, ok := markets.updates["0xc1"]
		require.True(t, ok)
		require.NotNil(t, st.YesPrice)
		require.NotNil(t, st.NoPrice)
		assert.True(t, st.YesPrice.Equal(decimal.RequireFromString("0.425")), st.YesPrice.String())
		assert.True(t, st.NoPrice.Equal(decimal.RequireFromString("0.575")), st.NoPrice.String())
		assert.Equal(t, "4200000000", st.TotalVolume)
		assert.Equal(t, "150000000", st.Volume24h)
		assert.False(t, st.UpdatedAt.IsZero())

		cached, err := cache.Get(context.Background(), "0xc1")
		require.NoError(t, err)
		assert.Equal(t, st.TotalVolume, cached.TotalVolume)

		published := bus.payloads(domain.StatsChannel("0xc1"))
		require.Len(t, published, 1)
		var evt domain.MarketStats
		require.NoError(t, json.Unmarshal(published[0], &evt))
		assert.Equal(t, "0xc1", evt.ConditionID)
		assert.Equal(t, "150000000", evt.Volume24h)
	})

	t.Run("empty book leaves prices unset", func(t *testing.T) {
		markets := newFakeStatsMarkets(statsMarket("0xc1", "101", "202"))
		books := &fakeBookSource{snaps: map[string]domain.BookSnapshot{
			"101": {TokenID: "101"},
		}}
		updater, _, _ := newUpdater(markets, books, &fakeVolumes{})

		require.NoError(t, updater.refresh(context.Background()))

		st, ok := markets.updates["0xc1"]
		require.True(t, ok)
		assert.Nil(t, st.YesPrice)
		assert.Nil(t, st.NoPrice)
		assert.Equal(t, "0", st.TotalVolume)
		assert.Equal(t, "0", st.Volume24h)
	})

	t.Run("book failure skips the market only", func(t *testing.T) {
		markets := newFakeStatsMarkets(
			statsMarket("0xc1", "101", "202"),
			statsMarket("0xc2", "303", "404"),
		)
		books := &fakeBookSource{snaps: map[string]domain.BookSnapshot{
			"303": midBook("303", "0.600"),
		}}
		updater, _, _ := newUpdater(markets, books, &fakeVolumes{})

		require.NoError(t, updater.refresh(context.Background()))

		assert.NotContains(t, markets.updates, "0xc1")
		assert.Contains(t, markets.updates, "0xc2")
	})

	t.Run("listing failure surfaces", func(t *testing.T) {
		markets := newFakeStatsMarkets()
		markets.listErr = errors.New("connection refused")
		updater, _, _ := newUpdater(markets, &fakeBookSource{}, &fakeVolumes{})

		err := updater.refresh(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list active markets")
	})
}
