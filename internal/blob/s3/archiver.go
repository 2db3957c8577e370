package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Narrow read surfaces the archiver needs from the stores.
type orderArchiveSource interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

type fillArchiveSource interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
}

// archivedOrder is the JSONL export shape for one order. Amounts are decimal
// strings, matching the wire format everywhere else.
type archivedOrder struct {
	ID           int64     `json:"id"`
	ConditionID  string    `json:"condition_id"`
	TokenID      string    `json:"token_id"`
	Maker        string    `json:"maker"`
	MakerAmount  string    `json:"maker_amount"`
	TakerAmount  string    `json:"taker_amount"`
	Expiration   int64     `json:"expiration"`
	Nonce        int64     `json:"nonce"`
	FeeRateBps   int64     `json:"fee_rate_bps"`
	Side         string    `json:"side"`
	Signer       string    `json:"signer,omitempty"`
	Signature    string    `json:"signature"`
	OrderHash    string    `json:"order_hash"`
	Status       string    `json:"status"`
	FilledAmount string    `json:"filled_amount"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// archivedFill is the JSONL export shape for one fill.
type archivedFill struct {
	ID               int64      `json:"id"`
	MakerOrderID     int64      `json:"maker_order_id"`
	TakerOrderID     int64      `json:"taker_order_id"`
	Maker            string     `json:"maker"`
	Taker            string     `json:"taker"`
	TokenAmount      string     `json:"token_amount"`
	CollateralAmount string     `json:"collateral_amount"`
	Fee              string     `json:"fee"`
	Status           string     `json:"status"`
	TxHash           string     `json:"tx_hash,omitempty"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newArchivedOrder(o domain.Order) archivedOrder {
	return archivedOrder{
		ID:           o.ID,
		ConditionID:  o.ConditionID,
		TokenID:      o.TokenID,
		Maker:        o.Maker,
		MakerAmount:  o.MakerAmount.String(),
		TakerAmount:  o.TakerAmount.String(),
		Expiration:   o.Expiration,
		Nonce:        o.Nonce,
		FeeRateBps:   o.FeeRateBps,
		Side:         string(o.Side),
		Signer:       o.Signer,
		Signature:    o.Signature,
		OrderHash:    o.OrderHash,
		Status:       string(o.Status),
		FilledAmount: o.FilledAmount.String(),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func newArchivedFill(f domain.Fill) archivedFill {
	return archivedFill{
		ID:               f.ID,
		MakerOrderID:     f.MakerOrderID,
		TakerOrderID:     f.TakerOrderID,
		Maker:            f.Maker,
		Taker:            f.Taker,
		TokenAmount:      f.TokenAmount.String(),
		CollateralAmount: f.CollateralAmount.String(),
		Fee:              f.Fee.String(),
		Status:           string(f.Status),
		TxHash:           f.TxHash,
		SettledAt:        f.SettledAt,
		CreatedAt:        f.CreatedAt,
	}
}

// Archiver exports terminal rows as JSONL, one object per kind per month of
// row creation. Rows stay in postgres; re-running a cutoff regenerates the
// same objects, so uploads are idempotent overwrites.
type Archiver struct {
	writer domain.BlobWriter
	orders orderArchiveSource
	fills  fillArchiveSource
	audit  domain.AuditStore
	logger *slog.Logger
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver writing through the given blob writer.
func NewArchiver(
	writer domain.BlobWriter,
	orders orderArchiveSource,
	fills fillArchiveSource,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer: writer,
		orders: orders,
		fills:  fills,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveFills exports settled and failed fills created before the cutoff.
// Returns the number of rows exported.
func (a *Archiver) ArchiveFills(ctx context.Context, before time.Time) (int, error) {
	fills, err := a.fills.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	months := make(map[string][]archivedFill)
	for _, f := range fills {
		m := f.CreatedAt.UTC().Format("2006-01")
		months[m] = append(months[m], newArchivedFill(f))
	}
	for month, batch := range months {
		if err := putJSONL(ctx, a.writer, archiveKey("fills", month), batch); err != nil {
			return 0, err
		}
	}

	a.auditRun(ctx, "archive.fills", len(fills), len(months), before)
	return len(fills), nil
}

// ArchiveOrders exports filled, cancelled and expired orders created before
// the cutoff. Returns the number of rows exported.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int, error) {
	orders, err := a.orders.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	months := make(map[string][]archivedOrder)
	for _, o := range orders {
		m := o.CreatedAt.UTC().Format("2006-01")
		months[m] = append(months[m], newArchivedOrder(o))
	}
	for month, batch := range months {
		if err := putJSONL(ctx, a.writer, archiveKey("orders", month), batch); err != nil {
			return 0, err
		}
	}

	a.auditRun(ctx, "archive.orders", len(orders), len(months), before)
	return len(orders), nil
}

func (a *Archiver) auditRun(ctx context.Context, event string, rows, objects int, before time.Time) {
	err := a.audit.Log(ctx, event, map[string]any{
		"rows":    rows,
		"objects": objects,
		"before":  before.UTC().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// archiveKey builds the object key for one month's export.
//
//	archive/fills/2026-07.jsonl
//	archive/orders/2026-07.jsonl
func archiveKey(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// putJSONL uploads records as newline-delimited JSON.
func putJSONL[T any](ctx context.Context, w domain.BlobWriter, key string, records []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("s3blob: encode %s record %d: %w", key, i, err)
		}
	}
	if err := w.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}
