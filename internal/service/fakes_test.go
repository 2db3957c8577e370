package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memOrders is an in-memory domain.OrderStore mirroring the transactional
// guarantees of the real store closely enough for service tests: guarded
// maker updates, duplicate hash detection and all-or-nothing match
// application.
type memOrders struct {
	mu      sync.Mutex
	seq     int64
	fillSeq int64
	byID    map[int64]*domain.Order

	// terminalFailures forces the next N CreateWithMatches calls to fail
	// the way a raced-away maker does.
	terminalFailures int
}

func newMemOrders() *memOrders {
	return &memOrders{byID: make(map[int64]*domain.Order)}
}

// add seeds an order directly, bypassing matching.
func (m *memOrders) add(o domain.Order) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	o.ID = m.seq
	if o.Status == "" {
		o.Status = domain.OrderStatusOpen
	}
	if o.FilledAmount == nil {
		o.FilledAmount = big.NewInt(0)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	stored := o
	m.byID[o.ID] = &stored
	return o
}

func (m *memOrders) CreateWithMatches(ctx context.Context, order *domain.Order, matches []domain.Match) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminalFailures > 0 {
		m.terminalFailures--
		return nil, domain.ErrOrderTerminal
	}
	for _, o := range m.byID {
		if o.OrderHash == order.OrderHash {
			return nil, domain.ErrDuplicateOrder
		}
	}

	// Validate every maker before mutating anything, like the rollback does.
	for _, match := range matches {
		maker, ok := m.byID[match.MakerOrderID]
		if !ok || !maker.Status.Resting() {
			return nil, domain.ErrOrderTerminal
		}
	}

	m.seq++
	order.ID = m.seq
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now

	total := new(big.Int)
	takerStatus := domain.OrderStatusPartial
	fills := make([]domain.Fill, 0, len(matches))
	for _, match := range matches {
		maker := m.byID[match.MakerOrderID]
		maker.FilledAmount = new(big.Int).Add(maker.FilledAmount, match.TokenAmount)
		maker.Status = domain.OrderStatusPartial
		if match.MakerExhausted {
			maker.Status = domain.OrderStatusFilled
		}
		maker.UpdatedAt = now

		total.Add(total, match.TokenAmount)
		if match.TakerExhausted {
			takerStatus = domain.OrderStatusFilled
		}

		m.fillSeq++
		fills = append(fills, domain.Fill{
			ID:               m.fillSeq,
			MakerOrderID:     match.MakerOrderID,
			TakerOrderID:     order.ID,
			Maker:            match.Maker,
			Taker:            match.Taker,
			TokenAmount:      match.TokenAmount,
			CollateralAmount: match.CollateralAmount,
			Fee:              match.Fee,
			Status:           domain.FillStatusPending,
			CreatedAt:        now,
		})
	}
	if len(matches) > 0 {
		order.FilledAmount = new(big.Int).Add(order.FilledAmount, total)
		order.Status = takerStatus
	}

	stored := *order
	m.byID[order.ID] = &stored
	return fills, nil
}

func (m *memOrders) GetByID(ctx context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

func (m *memOrders) GetByHash(ctx context.Context, orderHash string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.OrderHash == orderHash {
			return *o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *memOrders) ListResting(ctx context.Context, tokenID string, side domain.OrderSide) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.byID {
		if o.TokenID == tokenID && o.Side == side && o.Status.Resting() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memOrders) List(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.byID {
		if q.Maker != "" && o.Maker != q.Maker {
			continue
		}
		if q.ConditionID != "" && o.ConditionID != q.ConditionID {
			continue
		}
		if q.TokenID != "" && o.TokenID != q.TokenID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memOrders) Cancel(ctx context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !o.Status.Resting() {
		return domain.Order{}, domain.ErrOrderTerminal
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return *o, nil
}

func (m *memOrders) ExpireDue(ctx context.Context, now time.Time) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.byID {
		if o.Status.Resting() && o.Expiration > 0 && o.Expiration <= now.Unix() {
			o.Status = domain.OrderStatusExpired
			o.UpdatedAt = now
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memOrders) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.byID {
		if o.Status.Terminal() && o.CreatedAt.Before(before) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memFills is an in-memory domain.FillStore.
type memFills struct {
	mu         sync.Mutex
	seq        int64
	byID       map[int64]*domain.Fill
	conditions map[int64]string // fill id -> condition id, for volume sums
}

func newMemFills() *memFills {
	return &memFills{
		byID:       make(map[int64]*domain.Fill),
		conditions: make(map[int64]string),
	}
}

func (m *memFills) add(f domain.Fill, conditionID string) domain.Fill {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	f.ID = m.seq
	if f.Status == "" {
		f.Status = domain.FillStatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	stored := f
	m.byID[f.ID] = &stored
	m.conditions[f.ID] = conditionID
	return f
}

func (m *memFills) GetByID(ctx context.Context, id int64) (domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return domain.Fill{}, domain.ErrNotFound
	}
	return *f, nil
}

func (m *memFills) ListPending(ctx context.Context, limit int) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fill
	for _, f := range m.byID {
		if f.Status == domain.FillStatusPending {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFills) List(ctx context.Context, q domain.FillQuery) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fill
	for _, f := range m.byID {
		if q.Wallet != "" && f.Maker != q.Wallet && f.Taker != q.Wallet {
			continue
		}
		if q.OrderID != 0 && f.MakerOrderID != q.OrderID && f.TakerOrderID != q.OrderID {
			continue
		}
		if q.Status != "" && f.Status != q.Status {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memFills) MarkSettled(ctx context.Context, ids []int64, txHash string, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if f, ok := m.byID[id]; ok {
			f.Status = domain.FillStatusSettled
			f.TxHash = txHash
			at := settledAt
			f.SettledAt = &at
		}
	}
	return nil
}

func (m *memFills) MarkFailed(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if f, ok := m.byID[id]; ok {
			f.Status = domain.FillStatusFailed
		}
	}
	return nil
}

func (m *memFills) SumSettledCollateral(ctx context.Context, conditionID string, since *time.Time) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := new(big.Int)
	for id, f := range m.byID {
		if f.Status != domain.FillStatusSettled || m.conditions[id] != conditionID {
			continue
		}
		if since != nil && (f.SettledAt == nil || f.SettledAt.Before(*since)) {
			continue
		}
		sum.Add(sum, f.CollateralAmount)
	}
	return sum, nil
}

func (m *memFills) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fill
	for _, f := range m.byID {
		if f.Status.Terminal() && f.CreatedAt.Before(before) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memMarkets is an in-memory domain.MarketStore. Upsert preserves derived
// stats across re-syncs like the real store does.
type memMarkets struct {
	mu           sync.Mutex
	seq          int64
	byCondition  map[string]*domain.Market
	statsUpdates []string
}

func newMemMarkets() *memMarkets {
	return &memMarkets{byCondition: make(map[string]*domain.Market)}
}

func (m *memMarkets) add(mk domain.Market) domain.Market {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	mk.ID = m.seq
	if mk.Status == "" {
		mk.Status = domain.MarketStatusActive
	}
	if mk.CreatedAt.IsZero() {
		mk.CreatedAt = time.Now().UTC()
	}
	stored := mk
	m.byCondition[mk.ConditionID] = &stored
	return mk
}

func (m *memMarkets) Upsert(ctx context.Context, mk domain.Market) (domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byCondition[mk.ConditionID]; ok {
		mk.ID = existing.ID
		mk.CreatedAt = existing.CreatedAt
		mk.YesPrice = existing.YesPrice
		mk.NoPrice = existing.NoPrice
		mk.Volume24h = existing.Volume24h
		mk.TotalVolume = existing.TotalVolume
	} else {
		m.seq++
		mk.ID = m.seq
		mk.CreatedAt = time.Now().UTC()
	}
	mk.UpdatedAt = time.Now().UTC()
	stored := mk
	m.byCondition[mk.ConditionID] = &stored
	return mk, nil
}

func (m *memMarkets) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.byCondition[conditionID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return *mk, nil
}

func (m *memMarkets) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mk := range m.byCondition {
		if mk.YesTokenID == tokenID || mk.NoTokenID == tokenID {
			return *mk, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (m *memMarkets) ListActive(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Market
	for _, mk := range m.byCondition {
		if mk.Status != domain.MarketStatusActive {
			continue
		}
		if category != "" && mk.Category != category {
			continue
		}
		out = append(out, *mk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if opts.Offset > 0 && opts.Offset < len(out) {
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, total, nil
}

func (m *memMarkets) ListDueForResolution(ctx context.Context, now time.Time) ([]domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Market
	for _, mk := range m.byCondition {
		if mk.Status == domain.MarketStatusActive && mk.ResolutionTime > 0 && mk.ResolutionTime <= now.Unix() {
			out = append(out, *mk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolutionTime < out[j].ResolutionTime })
	return out, nil
}

func (m *memMarkets) UpdateStats(ctx context.Context, conditionID string, stats domain.MarketStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.byCondition[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	mk.YesPrice = stats.YesPrice
	mk.NoPrice = stats.NoPrice
	if v, ok := new(big.Int).SetString(stats.Volume24h, 10); ok {
		mk.Volume24h = v
	}
	if v, ok := new(big.Int).SetString(stats.TotalVolume, 10); ok {
		mk.TotalVolume = v
	}
	m.statsUpdates = append(m.statsUpdates, conditionID)
	return nil
}

func (m *memMarkets) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byCondition)), nil
}

// memAudit records audit entries.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAudit) eventNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Event
	}
	return names
}

// memLocks is an in-memory domain.LockManager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	err  error // forced backend failure
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (m *memLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

// memLimiter is an in-memory domain.RateLimiter.
type memLimiter struct {
	mu   sync.Mutex
	deny bool
	err  error
	keys []string
}

func (m *memLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return false, m.err
	}
	return !m.deny, nil
}

// memBus records published messages.
type memBus struct {
	mu   sync.Mutex
	msgs []domain.StreamMessage
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, domain.StreamMessage{Channel: channel, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, patterns ...string) (<-chan domain.StreamMessage, error) {
	ch := make(chan domain.StreamMessage)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *memBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.msgs))
	for i, m := range b.msgs {
		out[i] = m.Channel
	}
	return out
}

func (b *memBus) payloads(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, m := range b.msgs {
		if m.Channel == channel {
			out = append(out, m.Payload)
		}
	}
	return out
}

// memBooks is an in-memory domain.BookCache.
type memBooks struct {
	mu          sync.Mutex
	snaps       map[string]*domain.BookSnapshot
	invalidated []string
	sets        int
}

func newMemBooks() *memBooks {
	return &memBooks{snaps: make(map[string]*domain.BookSnapshot)}
}

func booksKey(tokenID string, depth int) string {
	return fmt.Sprintf("%s|%d", tokenID, depth)
}

func (m *memBooks) Get(ctx context.Context, tokenID string, depth int) (*domain.BookSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[booksKey(tokenID, depth)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (m *memBooks) Set(ctx context.Context, snapshot *domain.BookSnapshot, depth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snapshot
	m.snaps[booksKey(snapshot.TokenID, depth)] = &cp
	m.sets++
	return nil
}

func (m *memBooks) Invalidate(ctx context.Context, tokenIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tokenIDs {
		m.invalidated = append(m.invalidated, id)
		for key := range m.snaps {
			if strings.HasPrefix(key, id+"|") {
				delete(m.snaps, key)
			}
		}
	}
	return nil
}

// memStats is an in-memory domain.StatsCache.
type memStats struct {
	mu    sync.Mutex
	stats map[string]*domain.MarketStats
}

func newMemStats() *memStats {
	return &memStats{stats: make(map[string]*domain.MarketStats)}
}

func (m *memStats) Get(ctx context.Context, conditionID string) (*domain.MarketStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[conditionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStats) Set(ctx context.Context, stats domain.MarketStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := stats
	m.stats[stats.ConditionID] = &cp
	return nil
}

// stubHasher derives a deterministic pseudo-hash from the order's identity
// fields, unique enough for dedupe tests.
type stubHasher struct{}

func (stubHasher) Hash(o domain.Order) (string, error) {
	return fmt.Sprintf("0xhash-%s-%s-%d", strings.ToLower(o.Maker), o.TokenID, o.Nonce), nil
}

// stubVerifier accepts everything unless an error is set.
type stubVerifier struct {
	err error
}

func (v *stubVerifier) Verify(domain.Order) error { return v.err }

// stubChain is a programmable domain.ChainExecutor.
type stubChain struct {
	mu           sync.Mutex
	cancelled    []string // order hashes passed to CancelOrder
	cancelErr    error
	count        int64
	conditionIDs []string
	markets      map[string]domain.Market
	infoErr      map[string]error
	balances     map[string]*big.Int // wallet|token -> balance
	fillTx       string
	fillErr      error
}

func newStubChain() *stubChain {
	return &stubChain{
		markets:  make(map[string]domain.Market),
		infoErr:  make(map[string]error),
		balances: make(map[string]*big.Int),
		fillTx:   "0xsettletx",
	}
}

func (c *stubChain) FillOrders(ctx context.Context, orders []domain.Order, amounts []*big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fillErr != nil {
		return "", c.fillErr
	}
	return c.fillTx, nil
}

func (c *stubChain) CancelOrder(ctx context.Context, o domain.Order) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return "", c.cancelErr
	}
	c.cancelled = append(c.cancelled, o.OrderHash)
	return "0xcanceltx", nil
}

func (c *stubChain) MarketCount(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, nil
}

func (c *stubChain) MarketConditionIDs(ctx context.Context, offset, limit int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset >= int64(len(c.conditionIDs)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(c.conditionIDs)) {
		end = int64(len(c.conditionIDs))
	}
	return append([]string(nil), c.conditionIDs[offset:end]...), nil
}

func (c *stubChain) MarketInfo(ctx context.Context, conditionID string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.infoErr[conditionID]; err != nil {
		return domain.Market{}, err
	}
	m, ok := c.markets[conditionID]
	if !ok {
		return domain.Market{}, fmt.Errorf("no market %s", conditionID)
	}
	return m, nil
}

func (c *stubChain) PositionBalance(ctx context.Context, wallet, tokenID string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.balances[wallet+"|"+tokenID]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (c *stubChain) Health(ctx context.Context) error { return nil }

// stubStream records exported fill events.
type stubStream struct {
	mu     sync.Mutex
	events []domain.FillEvent
	err    error
}

func (s *stubStream) PublishFill(ctx context.Context, evt domain.FillEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}
