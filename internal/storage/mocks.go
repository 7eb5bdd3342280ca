package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// Operation names used by MockSignalStore.Errs and Calls
const (
	OpCountMatching      = "count_matching"
	OpUniqueSymbolCount  = "unique_symbol_count"
	OpLatestBarPerSymbol = "latest_bar_per_symbol"
	OpDetailForSymbols   = "detail_for_symbols"
	OpHistoryForSymbols  = "history_for_symbols"
	OpSortedBySignal     = "sorted_symbols_by_signal_count"
	OpLatestUpdate       = "latest_update"
)

// MockSignalStore is an in-memory SignalStore for testing. Queries behave like
// the SQL adapter; Errs injects a failure per operation.
type MockSignalStore struct {
	mu      sync.Mutex
	Bars    []*models.SignalBar
	Updated time.Time
	Errs    map[string]error
	Delay   time.Duration
	calls   map[string]int
}

// NewMockSignalStore creates a mock store holding bars
func NewMockSignalStore(bars ...*models.SignalBar) *MockSignalStore {
	return &MockSignalStore{
		Bars:  bars,
		Errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Calls returns how many times op was invoked
func (m *MockSignalStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetError injects err for op
func (m *MockSignalStore) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[op] = err
}

func (m *MockSignalStore) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	err := m.Errs[op]
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.NewStoreError(op, ctx.Err())
		}
	}
	if err != nil {
		return models.NewStoreError(op, err)
	}
	return nil
}

func (m *MockSignalStore) CountMatching(ctx context.Context, filter models.Filter) (int, error) {
	if err := m.enter(ctx, OpCountMatching); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, bar := range m.matching(filter) {
		seen[bar.Symbol] = struct{}{}
	}
	return len(seen), nil
}

func (m *MockSignalStore) UniqueSymbolCount(ctx context.Context) (int, error) {
	if err := m.enter(ctx, OpUniqueSymbolCount); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, bar := range m.snapshot() {
		seen[bar.Symbol] = struct{}{}
	}
	return len(seen), nil
}

func (m *MockSignalStore) LatestBarPerSymbol(ctx context.Context, filter models.Filter) ([]*models.SignalBar, error) {
	if err := m.enter(ctx, OpLatestBarPerSymbol); err != nil {
		return nil, err
	}
	latest := make(map[string]*models.SignalBar)
	for _, bar := range m.matching(filter) {
		cur, ok := latest[bar.Symbol]
		if !ok || newerSnapshot(bar, cur) {
			latest[bar.Symbol] = bar
		}
	}
	result := make([]*models.SignalBar, 0, len(latest))
	for _, bar := range latest {
		result = append(result, bar)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MockSignalStore) DetailForSymbols(ctx context.Context, symbols []string, timeframes []models.Timeframe) ([]*models.SignalBar, error) {
	if err := m.enter(ctx, OpDetailForSymbols); err != nil {
		return nil, err
	}
	wantSym := toSet(symbols)
	wantTF := make(map[models.Timeframe]struct{}, len(timeframes))
	for _, tf := range timeframes {
		wantTF[tf] = struct{}{}
	}

	latest := make(map[string]*models.SignalBar)
	for _, bar := range m.snapshot() {
		if _, ok := wantSym[bar.Symbol]; !ok {
			continue
		}
		if _, ok := wantTF[bar.Timeframe]; !ok {
			continue
		}
		key := bar.Symbol + "|" + string(bar.Timeframe)
		if cur, ok := latest[key]; !ok || bar.Date.After(cur.Date) {
			latest[key] = bar
		}
	}
	result := make([]*models.SignalBar, 0, len(latest))
	for _, bar := range latest {
		result = append(result, bar)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Timeframe < result[j].Timeframe
	})
	return result, nil
}

func (m *MockSignalStore) HistoryForSymbols(ctx context.Context, symbols []string, timeframe models.Timeframe, maxRows int) ([]*models.SignalBar, error) {
	if err := m.enter(ctx, OpHistoryForSymbols); err != nil {
		return nil, err
	}
	wantSym := toSet(symbols)
	bySymbol := make(map[string][]*models.SignalBar)
	for _, bar := range m.snapshot() {
		if _, ok := wantSym[bar.Symbol]; !ok || bar.Timeframe != timeframe {
			continue
		}
		bySymbol[bar.Symbol] = append(bySymbol[bar.Symbol], bar)
	}

	names := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		names = append(names, sym)
	}
	sort.Strings(names)

	result := []*models.SignalBar{}
	for _, sym := range names {
		rows := bySymbol[sym]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })
		if len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		result = append(result, rows...)
	}
	return result, nil
}

func (m *MockSignalStore) SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) ([]models.SymbolSignalCount, error) {
	if err := m.enter(ctx, OpSortedBySignal); err != nil {
		return nil, err
	}
	latest := make(map[string]map[models.Timeframe]*models.SignalBar)
	for _, bar := range m.matching(filter) {
		if !bar.Timeframe.Valid() {
			continue
		}
		perTF, ok := latest[bar.Symbol]
		if !ok {
			perTF = make(map[models.Timeframe]*models.SignalBar)
			latest[bar.Symbol] = perTF
		}
		if cur, ok := perTF[bar.Timeframe]; !ok || bar.Date.After(cur.Date) {
			perTF[bar.Timeframe] = bar
		}
	}

	result := make([]models.SymbolSignalCount, 0, len(latest))
	for sym, perTF := range latest {
		c := models.SymbolSignalCount{Symbol: sym}
		for tf, bar := range perTF {
			c.TotalPositive += bar.PositiveCount()
			if tf == timeframe {
				c.Count = bar.PositiveCount()
			}
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Count != b.Count {
			if direction == models.SortAsc {
				return a.Count < b.Count
			}
			return a.Count > b.Count
		}
		if a.TotalPositive != b.TotalPositive {
			if direction == models.SortAsc {
				return a.TotalPositive < b.TotalPositive
			}
			return a.TotalPositive > b.TotalPositive
		}
		return a.Symbol < b.Symbol
	})
	return result, nil
}

func (m *MockSignalStore) LatestUpdate(ctx context.Context) (time.Time, error) {
	if err := m.enter(ctx, OpLatestUpdate); err != nil {
		return time.Time{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Updated, nil
}

func (m *MockSignalStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockSignalStore) Close() error {
	return nil
}

func (m *MockSignalStore) snapshot() []*models.SignalBar {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SignalBar, len(m.Bars))
	copy(out, m.Bars)
	return out
}

func (m *MockSignalStore) matching(filter models.Filter) []*models.SignalBar {
	var symbols map[string]struct{}
	if len(filter.Symbols) > 0 {
		symbols = toSet(filter.Symbols)
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var out []*models.SignalBar
	for _, bar := range m.snapshot() {
		if filter.AssetType != "" && bar.AssetType != filter.AssetType {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(bar.Symbol), search) {
			continue
		}
		if symbols != nil {
			if _, ok := symbols[bar.Symbol]; !ok {
				continue
			}
		}
		out = append(out, bar)
	}
	return out
}

// newerSnapshot reports whether a replaces b as the latest snapshot row
func newerSnapshot(a, b *models.SignalBar) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	aDaily := a.Timeframe == models.DailyTimeframe
	bDaily := b.Timeframe == models.DailyTimeframe
	if aDaily != bDaily {
		return aDaily
	}
	return a.Timeframe < b.Timeframe
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// MockRedisClient is an in-memory RedisClient for testing
type MockRedisClient struct {
	mu         sync.Mutex
	ZSets      map[string]map[string]float64
	Sets       map[string]map[string]struct{}
	TTLs       map[string]time.Duration
	Published  []PubSubMessage
	PubSubData []PubSubMessage
	ReadErr    error
	WriteErr   error
	PublishErr error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		ZSets: make(map[string]map[string]float64),
		Sets:  make(map[string]map[string]struct{}),
		TTLs:  make(map[string]time.Duration),
	}
}

func (m *MockRedisClient) ZAddBatch(ctx context.Context, key string, members map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	zset, ok := m.ZSets[key]
	if !ok {
		zset = make(map[string]float64)
		m.ZSets[key] = zset
	}
	for member, score := range members {
		zset[member] = score
	}
	return nil
}

// ZRangeWithScores orders by score then member, like Redis
func (m *MockRedisClient) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	zset := m.ZSets[key]
	members := make([]ScoredMember, 0, len(zset))
	for member, score := range zset {
		members = append(members, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []ScoredMember{}, nil
	}
	return members[start : stop+1], nil
}

func (m *MockRedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return int64(len(m.ZSets[key])), nil
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.TTLs[key] = ttl
	return nil
}

func (m *MockRedisClient) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	for _, key := range keys {
		delete(m.ZSets, key)
		delete(m.Sets, key)
		delete(m.TTLs, key)
	}
	return nil
}

func (m *MockRedisClient) SetAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	set, ok := m.Sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.Sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MockRedisClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	members := make([]string, 0, len(m.Sets[key]))
	for member := range m.Sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: fmt.Sprint(message)})
	return nil
}

// Subscribe replays PubSubData and leaves the channel open until ctx is done
func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	m.mu.Lock()
	pending := make([]PubSubMessage, len(m.PubSubData))
	copy(pending, m.PubSubData)
	m.mu.Unlock()

	ch := make(chan PubSubMessage, len(pending))
	for _, msg := range pending {
		ch <- msg
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *MockRedisClient) Ping(ctx context.Context) error {
	return nil
}

func (m *MockRedisClient) Close() error {
	return nil
}
