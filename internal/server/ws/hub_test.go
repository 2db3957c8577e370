package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMatchChannel(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		channel string
		want    bool
	}{
		{"exact", "book:101", "book:101", true},
		{"mismatch", "book:101", "book:202", false},
		{"trailing wildcard", "book:*", "book:101", true},
		{"wildcard wrong prefix", "book:*", "trades:0xc1", false},
		{"bare wildcard", "*", "stats:0xc1", true},
		{"wildcard only at the end", "*:101", "book:101", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchChannel(tc.pattern, tc.channel))
		})
	}
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: make(map[string]bool)}

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{"book:101", "trades:*"}})
	assert.True(t, c.subscribed("book:101"))
	assert.True(t, c.subscribed("trades:0xc1"))
	assert.False(t, c.subscribed("stats:0xc1"))

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{"book:101"}})
	assert.False(t, c.subscribed("book:101"))
	assert.True(t, c.subscribed("trades:0xc1"))

	c.apply(subscribeMsg{Action: "noop", Channels: []string{"stats:*"}})
	assert.False(t, c.subscribed("stats:0xc1"))
}

func TestFanOut(t *testing.T) {
	newClient := func(channels ...string) *client {
		c := &client{
			id:   "test",
			send: make(chan []byte, 1),
			subs: make(map[string]bool),
		}
		for _, ch := range channels {
			c.subs[ch] = true
		}
		return c
	}

	t.Run("delivers enveloped frames to subscribers", func(t *testing.T) {
		h := NewHub(nil, nil, discardLogger())
		subscriber := newClient("book:*")
		bystander := newClient("trades:0xc1")
		h.clients[subscriber] = true
		h.clients[bystander] = true

		h.fanOut(domain.StreamMessage{
			Channel: domain.BookChannel("101"),
			Payload: []byte(`{"token_id":"101"}`),
		})

		require.Len(t, subscriber.send, 1)
		var got frame
		require.NoError(t, json.Unmarshal(<-subscriber.send, &got))
		assert.Equal(t, "book:101", got.Channel)
		assert.JSONEq(t, `{"token_id":"101"}`, string(got.Data))

		assert.Empty(t, bystander.send)
	})

	t.Run("drops frames for a saturated client", func(t *testing.T) {
		h := NewHub(nil, nil, discardLogger())
		slow := newClient("stats:*")
		slow.send <- []byte("stuck")
		h.clients[slow] = true

		h.fanOut(domain.StreamMessage{
			Channel: domain.StatsChannel("0xc1"),
			Payload: []byte(`{}`),
		})

		assert.Len(t, slow.send, 1)
		assert.Equal(t, "stuck", string(<-slow.send))
	})
}
