package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

type stubPositions struct {
	positions func(ctx context.Context, wallet string) ([]domain.Position, error)
}

func (s *stubPositions) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	return s.positions(ctx, wallet)
}

func TestListPositions(t *testing.T) {
	t.Run("returns the wallet's balances", func(t *testing.T) {
		stub := &stubPositions{
			positions: func(_ context.Context, wallet string) ([]domain.Position, error) {
				require.Equal(t, testMaker, wallet)
				return []domain.Position{{
					ConditionID: "0xc1",
					TokenID:     "101",
					Outcome:     "yes",
					Title:       "Will it rain tomorrow?",
					Balance:     big.NewInt(250_000_000),
				}}, nil
			},
		}
		h := NewPositionHandler(stub, discardLogger())

		r := httptest.NewRequest(http.MethodGet, "/api/v1/positions/"+testMaker, nil)
		r.SetPathValue("wallet", testMaker)
		w := httptest.NewRecorder()
		h.List(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp listPositionsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, testMaker, resp.Wallet)
		require.Len(t, resp.Positions, 1)
		assert.Equal(t, "yes", resp.Positions[0].Outcome)
		assert.Equal(t, "250000000", resp.Positions[0].Balance)
	})

	t.Run("bad address is a 400", func(t *testing.T) {
		stub := &stubPositions{
			positions: func(context.Context, string) ([]domain.Position, error) {
				return nil, fmt.Errorf("service: positions: %w", domain.ErrInvalidAddress)
			},
		}
		h := NewPositionHandler(stub, discardLogger())

		r := httptest.NewRequest(http.MethodGet, "/api/v1/positions/nonsense", nil)
		r.SetPathValue("wallet", "nonsense")
		w := httptest.NewRecorder()
		h.List(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
