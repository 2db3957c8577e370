package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus implements domain.SignalBus in memory. Published payloads are
// recorded and delivered to matching subscribers without blocking.
type fakeBus struct {
	mu     sync.Mutex
	msgs   []busMsg
	subs   map[string][]chan domain.StreamMessage
	pubErr error
}

type busMsg struct {
	channel string
	payload []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: map[string][]chan domain.StreamMessage{}}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, busMsg{channel: channel, payload: payload})
	for _, ch := range b.subs[channel] {
		select {
		case ch <- domain.StreamMessage{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, patterns ...string) (<-chan domain.StreamMessage, error) {
	ch := make(chan domain.StreamMessage, 16)
	b.mu.Lock()
	for _, p := range patterns {
		b.subs[p] = append(b.subs[p], ch)
	}
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, p := range patterns {
			chans := b.subs[p]
			for i, c := range chans {
				if c == ch {
					b.subs[p] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (b *fakeBus) subscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *fakeBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.msgs))
	for i, m := range b.msgs {
		out[i] = m.channel
	}
	return out
}

func (b *fakeBus) payloads(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, m := range b.msgs {
		if m.channel == channel {
			out = append(out, m.payload)
		}
	}
	return out
}

// fakeFills implements settlerFillStore over a map, keeping insertion order
// so ListPending is oldest-first like the real store.
type fakeFills struct {
	mu        sync.Mutex
	fills     map[int64]*domain.Fill
	order     []int64
	listErr   error
	settleErr error
	failErr   error
}

func newFakeFills() *fakeFills {
	return &fakeFills{fills: map[int64]*domain.Fill{}}
}

func (f *fakeFills) add(fill domain.Fill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fill.Status == "" {
		fill.Status = domain.FillStatusPending
	}
	f.fills[fill.ID] = &fill
	f.order = append(f.order, fill.ID)
}

func (f *fakeFills) ListPending(ctx context.Context, limit int) ([]domain.Fill, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Fill
	for _, id := range f.order {
		fl := f.fills[id]
		if fl.Status != domain.FillStatusPending {
			continue
		}
		out = append(out, *fl)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeFills) MarkSettled(ctx context.Context, ids []int64, txHash string, settledAt time.Time) error {
	if f.settleErr != nil {
		return f.settleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		fl := f.fills[id]
		fl.Status = domain.FillStatusSettled
		fl.TxHash = txHash
		at := settledAt
		fl.SettledAt = &at
	}
	return nil
}

func (f *fakeFills) MarkFailed(ctx context.Context, ids []int64) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.fills[id].Status = domain.FillStatusFailed
	}
	return nil
}

func (f *fakeFills) status(id int64) domain.FillStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fills[id].Status
}

func (f *fakeFills) get(id int64) domain.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.fills[id]
}

// fakeOrderReader implements orderReader and counts lookups so batch-level
// maker deduplication is observable.
type fakeOrderReader struct {
	mu     sync.Mutex
	orders map[int64]domain.Order
	gets   int
}

func newFakeOrderReader(orders ...domain.Order) *fakeOrderReader {
	r := &fakeOrderReader{orders: map[int64]domain.Order{}}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderReader) GetByID(ctx context.Context, id int64) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrderReader) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// fakeChain implements batchFiller, recording every call and failing the
// first `failures` submissions.
type fakeChain struct {
	mu       sync.Mutex
	calls    []chainCall
	txHash   string
	failures int
}

type chainCall struct {
	hashes  []string
	amounts []string
}

func (c *fakeChain) FillOrders(ctx context.Context, orders []domain.Order, amounts []*big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := chainCall{}
	for _, o := range orders {
		call.hashes = append(call.hashes, o.OrderHash)
	}
	for _, a := range amounts {
		call.amounts = append(call.amounts, a.String())
	}
	c.calls = append(c.calls, call)
	if c.failures > 0 {
		c.failures--
		return "", errors.New("execution reverted")
	}
	return c.txHash, nil
}

func (c *fakeChain) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// cancellingChain cancels the run context from inside the submission, as a
// shutdown arriving mid-flight would.
type cancellingChain struct {
	cancel context.CancelFunc
}

func (c *cancellingChain) FillOrders(ctx context.Context, orders []domain.Order, amounts []*big.Int) (string, error) {
	c.cancel()
	return "", context.Canceled
}

// fakeAudit implements auditLogger.
type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

type auditEntry struct {
	event  string
	detail map[string]any
}

func (a *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{event: event, detail: detail})
	return nil
}

func (a *fakeAudit) eventNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.event
	}
	return out
}

// alertSender implements notify.Sender.
type alertSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *alertSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *alertSender) Name() string { return "test" }

// fakeExpirer implements orderExpirer, handing out its queued orders once.
type fakeExpirer struct {
	expired   []domain.Order
	expireErr error
}

func (e *fakeExpirer) ExpireDue(ctx context.Context, now time.Time) ([]domain.Order, error) {
	if e.expireErr != nil {
		return nil, e.expireErr
	}
	out := e.expired
	e.expired = nil
	return out, nil
}

// fakeBooks implements bookInvalidator.
type fakeBooks struct {
	mu          sync.Mutex
	invalidated [][]string
	err         error
}

func (b *fakeBooks) Invalidate(ctx context.Context, tokenIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, tokenIDs)
	return b.err
}

// fakeBookSource implements bookSource from a static snapshot map.
type fakeBookSource struct {
	snaps map[string]domain.BookSnapshot
}

func (b *fakeBookSource) GetBook(ctx context.Context, tokenID string, depth int) (domain.BookSnapshot, error) {
	s, ok := b.snaps[tokenID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

// fakeVolumes implements statsFillStore with fixed totals per market.
type fakeVolumes struct {
	total  map[string]*big.Int
	recent map[string]*big.Int
}

func (v *fakeVolumes) SumSettledCollateral(ctx context.Context, conditionID string, since *time.Time) (*big.Int, error) {
	m := v.total
	if since != nil {
		m = v.recent
	}
	if val, ok := m[conditionID]; ok {
		return new(big.Int).Set(val), nil
	}
	return big.NewInt(0), nil
}

// fakeStatsMarkets implements statsMarketStore.
type fakeStatsMarkets struct {
	mu      sync.Mutex
	actives []domain.Market
	updates map[string]domain.MarketStats
	listErr error
}

func newFakeStatsMarkets(actives ...domain.Market) *fakeStatsMarkets {
	return &fakeStatsMarkets{actives: actives, updates: map[string]domain.MarketStats{}}
}

func (m *fakeStatsMarkets) ListActive(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.actives, int64(len(m.actives)), nil
}

func (m *fakeStatsMarkets) UpdateStats(ctx context.Context, conditionID string, stats domain.MarketStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[conditionID] = stats
	return nil
}

// fakeStatsCache implements domain.StatsCache.
type fakeStatsCache struct {
	mu  sync.Mutex
	set map[string]domain.MarketStats
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{set: map[string]domain.MarketStats{}}
}

func (c *fakeStatsCache) Get(ctx context.Context, conditionID string) (*domain.MarketStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.set[conditionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (c *fakeStatsCache) Set(ctx context.Context, stats domain.MarketStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[stats.ConditionID] = stats
	return nil
}

// fakeArchiver implements domain.Archiver.
type fakeArchiver struct {
	fills    int
	orders   int
	fillErr  error
	orderErr error
	cutoffs  []time.Time
	calls    []string
}

func (a *fakeArchiver) ArchiveFills(ctx context.Context, before time.Time) (int, error) {
	a.calls = append(a.calls, "fills")
	a.cutoffs = append(a.cutoffs, before)
	return a.fills, a.fillErr
}

func (a *fakeArchiver) ArchiveOrders(ctx context.Context, before time.Time) (int, error) {
	a.calls = append(a.calls, "orders")
	a.cutoffs = append(a.cutoffs, before)
	return a.orders, a.orderErr
}
