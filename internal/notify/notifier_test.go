package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotify(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("event filter", func(t *testing.T) {
		s := &recordingSender{name: "test"}
		n := NewNotifier([]Sender{s}, []string{EventSettlementFailed}, logger)

		require.NoError(t, n.Notify(ctx, EventSettlementFailed, "batch failed", "details"))
		require.NoError(t, n.Notify(ctx, EventMarketResolved, "resolved", "details"))

		assert.Equal(t, []string{"batch failed"}, s.titles)
	})

	t.Run("empty filter passes everything", func(t *testing.T) {
		s := &recordingSender{name: "test"}
		n := NewNotifier([]Sender{s}, nil, logger)

		require.NoError(t, n.Notify(ctx, EventError, "a", ""))
		require.NoError(t, n.Notify(ctx, "anything", "b", ""))

		assert.Len(t, s.titles, 2)
	})

	t.Run("one failing sender does not stop the rest", func(t *testing.T) {
		bad := &recordingSender{name: "bad", err: errors.New("boom")}
		good := &recordingSender{name: "good"}
		n := NewNotifier([]Sender{bad, good}, nil, logger)

		err := n.Notify(ctx, EventError, "alert", "details")
		assert.ErrorContains(t, err, "bad")
		assert.Equal(t, []string{"alert"}, good.titles)
	})

	t.Run("no senders is a no-op", func(t *testing.T) {
		n := NewNotifier(nil, nil, logger)
		assert.NoError(t, n.Notify(ctx, EventError, "alert", "details"))
	})
}
