package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRun(t *testing.T) {
	t.Run("archives both tables past the retention window", func(t *testing.T) {
		fake := &fakeArchiver{fills: 120, orders: 45}
		runner := NewArchiveRunner(fake, time.Hour, 90, discardLogger())

		require.NoError(t, runner.archive(context.Background()))

		require.Equal(t, []string{"fills", "orders"}, fake.calls)
		want := time.Now().UTC().AddDate(0, 0, -90)
		assert.WithinDuration(t, want, fake.cutoffs[0], time.Minute)
		assert.Equal(t, fake.cutoffs[0], fake.cutoffs[1])
	})

	t.Run("fill archival failure stops the run", func(t *testing.T) {
		fake := &fakeArchiver{fillErr: errors.New("bucket unavailable")}
		runner := NewArchiveRunner(fake, time.Hour, 90, discardLogger())

		err := runner.archive(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fills before")
		assert.Equal(t, []string{"fills"}, fake.calls)
	})
}
