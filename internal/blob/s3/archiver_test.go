package s3blob

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func (w *memWriter) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[key] = append([]byte(nil), body...)
	return nil
}

type stubFillSource []domain.Fill

func (s stubFillSource) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	return s, nil
}

type stubOrderSource []domain.Order

func (s stubOrderSource) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return s, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveFills(t *testing.T) {
	july := time.Date(2026, 7, 3, 12, 0, 0, 0, time.UTC)
	august := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	settled := july.Add(time.Minute)

	fills := stubFillSource{
		{
			ID:               1,
			MakerOrderID:     10,
			TakerOrderID:     11,
			Maker:            "0x1111111111111111111111111111111111111111",
			Taker:            "0x2222222222222222222222222222222222222222",
			TokenAmount:      big.NewInt(1000000),
			CollateralAmount: big.NewInt(450000),
			Fee:              big.NewInt(2250),
			Status:           domain.FillStatusSettled,
			TxHash:           "0xabc",
			SettledAt:        &settled,
			CreatedAt:        july,
		},
		{
			ID:               2,
			MakerOrderID:     12,
			TakerOrderID:     13,
			Maker:            "0x1111111111111111111111111111111111111111",
			Taker:            "0x3333333333333333333333333333333333333333",
			TokenAmount:      big.NewInt(500000),
			CollateralAmount: big.NewInt(225000),
			Fee:              big.NewInt(0),
			Status:           domain.FillStatusFailed,
			CreatedAt:        august,
		},
	}

	w := &memWriter{}
	audit := &memAudit{}
	a := NewArchiver(w, stubOrderSource{}, fills, audit, discardLogger())

	n, err := a.ArchiveFills(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// One object per creation month.
	require.Contains(t, w.objects, "archive/fills/2026-07.jsonl")
	require.Contains(t, w.objects, "archive/fills/2026-08.jsonl")

	julyObj := string(w.objects["archive/fills/2026-07.jsonl"])
	assert.Contains(t, julyObj, `"token_amount":"1000000"`)
	assert.Contains(t, julyObj, `"tx_hash":"0xabc"`)
	assert.NotContains(t, julyObj, `"id":2`)

	augustObj := string(w.objects["archive/fills/2026-08.jsonl"])
	assert.Contains(t, augustObj, `"status":"failed"`)
	assert.NotContains(t, augustObj, `"tx_hash"`)

	assert.Equal(t, []string{"archive.fills"}, audit.events)

	t.Run("no rows, no objects", func(t *testing.T) {
		w := &memWriter{}
		audit := &memAudit{}
		a := NewArchiver(w, stubOrderSource{}, stubFillSource{}, audit, discardLogger())

		n, err := a.ArchiveFills(context.Background(), time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, w.objects)
		assert.Empty(t, audit.events)
	})
}

func TestArchiveOrders(t *testing.T) {
	created := time.Date(2026, 6, 20, 8, 0, 0, 0, time.UTC)

	orders := stubOrderSource{
		{
			ID:           5,
			ConditionID:  "0xcid",
			TokenID:      "123456",
			Maker:        "0x1111111111111111111111111111111111111111",
			MakerAmount:  big.NewInt(500000),
			TakerAmount:  big.NewInt(1000000),
			Side:         domain.OrderSideBuy,
			OrderHash:    "0xhash",
			Status:       domain.OrderStatusFilled,
			FilledAmount: big.NewInt(1000000),
			CreatedAt:    created,
			UpdatedAt:    created,
		},
	}

	w := &memWriter{}
	audit := &memAudit{}
	a := NewArchiver(w, orders, stubFillSource{}, audit, discardLogger())

	n, err := a.ArchiveOrders(context.Background(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Contains(t, w.objects, "archive/orders/2026-06.jsonl")
	obj := string(w.objects["archive/orders/2026-06.jsonl"])
	assert.Contains(t, obj, `"maker_amount":"500000"`)
	assert.Contains(t, obj, `"side":"buy"`)
	assert.Contains(t, obj, `"status":"filled"`)
	assert.Equal(t, []string{"archive.orders"}, audit.events)
}
