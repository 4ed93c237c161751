package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kline-cache/src/logger"
	"kline-cache/src/models"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type stubStore struct {
	mu           sync.Mutex
	points       map[string][]models.MPricePoint
	transactions map[string][]models.MTransaction
	putCalls     int
}

func newStubStore() *stubStore {
	return &stubStore{
		points:       make(map[string][]models.MPricePoint),
		transactions: make(map[string][]models.MTransaction),
	}
}

func (s *stubStore) Initialize() error { return nil }
func (s *stubStore) Close() error      { return nil }

func (s *stubStore) PutPoints(token0, token1 string, interval models.Interval, points []models.MPricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%s", token0, token1, interval)
	s.points[key] = append(s.points[key], points...)
	s.putCalls++
	return nil
}

func (s *stubStore) PutTransactions(token0, token1 string, transactions []models.MTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%s", token0, token1)
	s.transactions[key] = append(s.transactions[key], transactions...)
	s.putCalls++
	return nil
}

func (s *stubStore) QueryPoints(token0, token1 string, interval models.Interval, query models.MPointQuery) ([]models.MPricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[fmt.Sprintf("%s/%s/%s", token0, token1, interval)], nil
}

func (s *stubStore) QueryTransactions(token0, token1 string, tokenReversed bool, query models.MTransactionQuery) ([]models.MTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.MTransaction
	for _, tx := range s.transactions[fmt.Sprintf("%s/%s", token0, token1)] {
		if bool(tx.TokenReversed) == tokenReversed {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *stubStore) CountTransactions(token0, token1 string, tokenReversed bool) (int, error) {
	transactions, _ := s.QueryTransactions(token0, token1, tokenReversed, models.MTransactionQuery{})
	return len(transactions), nil
}

func (s *stubStore) TimestampRange(token0, token1 string, interval models.Interval) (models.MTimestampRange, error) {
	return models.MTimestampRange{}, nil
}

func (s *stubStore) pointCount(token0, token1 string, interval models.Interval) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points[fmt.Sprintf("%s/%s/%s", token0, token1, interval)])
}

// -----------------------------------------------------------------------------

type stubFetcher struct {
	points       []models.MPricePoint
	transactions []models.MTransaction
	err          error
}

func (f *stubFetcher) FetchPoints(ctx context.Context, token0, token1 string, interval models.Interval, startAt, endAt int64) (*models.MPointsBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.MPointsBatch{
		Token0:   token0,
		Token1:   token1,
		StartAt:  models.MTimestampMs(startAt),
		EndAt:    models.MTimestampMs(endAt),
		Interval: interval,
		Points:   f.points,
	}, nil
}

func (f *stubFetcher) FetchTransactions(ctx context.Context, token0, token1 string, startAt, endAt int64) ([]models.MTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions, nil
}

// -----------------------------------------------------------------------------

func newTestWorker(t *testing.T, store *stubStore, fetcher *stubFetcher) *KlineWorker {
	t.Helper()

	w := NewKlineWorker(store, fetcher, logger.NewLogger("INFO", "test"))
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func collect(w *KlineWorker, eventType EventType) <-chan Event {
	events := make(chan Event, 16)
	w.On(eventType, func(event Event) { events <- event })
	return events
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func manyTestPoints(n int) []models.MPricePoint {
	points := make([]models.MPricePoint, n)
	for i := range points {
		points[i] = models.MPricePoint{Close: float64(i), Timestamp: models.MTimestampMs(int64(i+1) * 1000)}
	}
	return points
}

// -----------------------------------------------------------------------------

func TestWorkerFetchPointsRespondsAndPersists(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	fetcher := &stubFetcher{points: manyTestPoints(3)}
	w := newTestWorker(t, store, fetcher)

	fetched := collect(w, EventFetchedPoints)
	persisted := collect(w, EventPersistedPoints)

	assert.NoError(t, w.Send(Event{Type: EventFetchPoints, Payload: models.MFetchPointsPayload{
		Token0:   "SOL",
		Token1:   "USDC",
		Interval: models.IntervalOneMinute,
		StartAt:  0,
		EndAt:    10000,
	}}))

	response := waitEvent(t, fetched)
	batch, ok := response.Payload.(models.MPointsBatch)
	assert.True(t, ok)
	assert.Equal(t, "SOL", batch.Token0)
	assert.Len(t, batch.Points, 3)

	ack := waitEvent(t, persisted)
	ackPayload, ok := ack.Payload.(models.MPersistedPointsPayload)
	assert.True(t, ok)
	assert.Equal(t, 3, ackPayload.Count)
	assert.Equal(t, 3, store.pointCount("SOL", "USDC", models.IntervalOneMinute))
}

// -----------------------------------------------------------------------------

func TestWorkerFetchErrorEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	fetcher := &stubFetcher{err: fmt.Errorf("remote down")}
	w := newTestWorker(t, store, fetcher)

	errs := collect(w, EventError)

	assert.NoError(t, w.Send(Event{Type: EventFetchPoints, Payload: models.MFetchPointsPayload{
		Token0: "SOL", Token1: "USDC", Interval: models.IntervalOneMinute,
	}}))

	event := waitEvent(t, errs)
	err, ok := event.Payload.(error)
	assert.True(t, ok)
	assert.Contains(t, err.Error(), "remote down")
}

// -----------------------------------------------------------------------------

func TestWorkerNewPointsPersistedInChunks(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	w := newTestWorker(t, store, &stubFetcher{})

	persisted := collect(w, EventPersistedPoints)

	// 45 points means three storage writes at the chunk size of 20.
	assert.NoError(t, w.Send(Event{Type: EventNewPoints, Payload: models.MPointsBatch{
		Token0:   "SOL",
		Token1:   "USDC",
		Interval: models.IntervalOneMinute,
		Points:   manyTestPoints(45),
	}}))

	ack := waitEvent(t, persisted)
	ackPayload, ok := ack.Payload.(models.MPersistedPointsPayload)
	assert.True(t, ok)
	assert.Equal(t, 45, ackPayload.Count)

	store.mu.Lock()
	calls := store.putCalls
	store.mu.Unlock()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 45, store.pointCount("SOL", "USDC", models.IntervalOneMinute))
}

// -----------------------------------------------------------------------------

func TestWorkerNewTransactionsPersistedAndAcked(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	w := newTestWorker(t, store, &stubFetcher{})

	persisted := collect(w, EventPersistedTransactions)

	assert.NoError(t, w.Send(Event{Type: EventNewTransactions, Payload: models.MTransactionsBatch{
		Token0: "SOL",
		Token1: "USDC",
		Transactions: []models.MTransaction{
			{TransactionID: 1, CreatedAt: 1000, CreatedTimestamp: 1000},
			{TransactionID: 2, CreatedAt: 2000, CreatedTimestamp: 2000},
		},
	}}))

	ack := waitEvent(t, persisted)
	ackPayload, ok := ack.Payload.(models.MPersistedTransactionsPayload)
	assert.True(t, ok)
	assert.Equal(t, 2, ackPayload.Count)
}

// -----------------------------------------------------------------------------

func TestWorkerLoadPointsReadsStore(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	assert.NoError(t, store.PutPoints("SOL", "USDC", models.IntervalOneMinute, manyTestPoints(2)))
	w := newTestWorker(t, store, &stubFetcher{})

	loaded := collect(w, EventLoadedPoints)

	assert.NoError(t, w.Send(Event{Type: EventLoadPoints, Payload: models.MLoadPointsPayload{
		Token0:   "SOL",
		Token1:   "USDC",
		Interval: models.IntervalOneMinute,
	}}))

	event := waitEvent(t, loaded)
	payload, ok := event.Payload.(models.MLoadedPointsPayload)
	assert.True(t, ok)
	assert.Len(t, payload.Points, 2)
}

// -----------------------------------------------------------------------------

func TestWorkerSortPointsMerges(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, newStubStore(), &stubFetcher{})

	sorted := collect(w, EventSortedPoints)

	assert.NoError(t, w.Send(Event{Type: EventSortPoints, Payload: models.MSortPointsPayload{
		OriginPoints: []models.MPricePoint{{Close: 1, Timestamp: 100}, {Close: 2, Timestamp: 200}},
		NewPoints:    []models.MPricePoint{{Close: 2.5, Timestamp: 200}, {Close: 3, Timestamp: 300}},
		KeepCount:    2,
		Reverse:      true,
	}}))

	event := waitEvent(t, sorted)
	payload, ok := event.Payload.(models.MSortedPointsPayload)
	assert.True(t, ok)
	assert.Len(t, payload.Points, 2)
	assert.Equal(t, models.MTimestampMs(200), payload.Points[0].Timestamp)
	assert.InDelta(t, 2.5, payload.Points[0].Close, 1e-9)
	assert.Equal(t, models.MTimestampMs(300), payload.Points[1].Timestamp)
}

// -----------------------------------------------------------------------------

func TestWorkerSortTransactionsFiltersReversed(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, newStubStore(), &stubFetcher{})

	sorted := collect(w, EventSortedTransactions)

	assert.NoError(t, w.Send(Event{Type: EventSortTransactions, Payload: models.MSortTransactionsPayload{
		OriginTransactions: []models.MTransaction{
			{TransactionID: 1, CreatedTimestamp: 1000, TokenReversed: false},
		},
		NewTransactions: []models.MTransaction{
			{TransactionID: 2, CreatedTimestamp: 2000, TokenReversed: true},
			{TransactionID: 3, CreatedTimestamp: 3000, TokenReversed: false},
		},
		TokenReversed: false,
		KeepCount:     -1,
	}}))

	event := waitEvent(t, sorted)
	payload, ok := event.Payload.(models.MSortedTransactionsPayload)
	assert.True(t, ok)
	assert.Len(t, payload.Transactions, 2)
	assert.Equal(t, int64(1), payload.Transactions[0].TransactionID)
	assert.Equal(t, int64(3), payload.Transactions[1].TransactionID)
}

// -----------------------------------------------------------------------------

func TestWorkerBadPayloadEmitsError(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, newStubStore(), &stubFetcher{})

	errs := collect(w, EventError)

	assert.NoError(t, w.Send(Event{Type: EventFetchPoints, Payload: "not a payload"}))

	event := waitEvent(t, errs)
	assert.NotNil(t, event.Payload)
}

// -----------------------------------------------------------------------------

func TestWorkerMultipleListenersFanOut(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, newStubStore(), &stubFetcher{})

	first := collect(w, EventSortedPoints)
	second := collect(w, EventSortedPoints)

	assert.NoError(t, w.Send(Event{Type: EventSortPoints, Payload: models.MSortPointsPayload{
		NewPoints: []models.MPricePoint{{Timestamp: 100}},
		KeepCount: -1,
	}}))

	waitEvent(t, first)
	waitEvent(t, second)
}

// -----------------------------------------------------------------------------

func TestWorkerSendAfterStop(t *testing.T) {
	t.Parallel()

	w := NewKlineWorker(newStubStore(), &stubFetcher{}, logger.NewLogger("INFO", "test"))
	w.Start()
	w.Stop()

	assert.Error(t, w.Send(Event{Type: EventSortPoints, Payload: models.MSortPointsPayload{}}))
}
