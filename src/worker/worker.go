package worker

import (
	"context"
	"fmt"
	"sync"

	"kline-cache/src/analysis"
	"kline-cache/src/interfaces"
	"kline-cache/src/logger"
	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// KlineWorker is the background sync actor. Callers interact with it only
// through typed events: requests go in through Send, responses and acks come
// back through listeners registered with On. All request handling runs on a
// single goroutine, so handlers never race each other; persistence runs on a
// separate goroutine so slow disk writes never delay responses.
//
// Fetch responses are emitted as soon as the remote data is decoded, before
// the background write lands. Listeners that need durability confirmation
// subscribe to the Persisted* acks instead.
// -----------------------------------------------------------------------------

type EventType string

const (
	EventFetchPoints         EventType = "FetchPoints"
	EventFetchedPoints       EventType = "FetchedPoints"
	EventFetchTransactions   EventType = "FetchTransactions"
	EventFetchedTransactions EventType = "FetchedTransactions"

	EventLoadPoints         EventType = "LoadPoints"
	EventLoadedPoints       EventType = "LoadedPoints"
	EventLoadTransactions   EventType = "LoadTransactions"
	EventLoadedTransactions EventType = "LoadedTransactions"

	EventNewPoints       EventType = "NewPoints"
	EventNewTransactions EventType = "NewTransactions"

	EventSortPoints         EventType = "SortPoints"
	EventSortedPoints       EventType = "SortedPoints"
	EventSortTransactions   EventType = "SortTransactions"
	EventSortedTransactions EventType = "SortedTransactions"

	EventPersistedPoints       EventType = "PersistedPoints"
	EventPersistedTransactions EventType = "PersistedTransactions"

	EventError EventType = "Error"
)

// -----------------------------------------------------------------------------

type Event struct {
	Type    EventType
	Payload interface{}
}

type Listener func(Event)

// -----------------------------------------------------------------------------

const (
	inboxCapacity        = 256
	persistQueueCapacity = 64

	// persistChunkSize keeps individual storage transactions small so a
	// single bad record cannot poison a large batch.
	persistChunkSize = 20
)

type persistJob struct {
	token0       string
	token1       string
	interval     models.Interval
	points       []models.MPricePoint
	transactions []models.MTransaction
}

// -----------------------------------------------------------------------------

type KlineWorker struct {
	Store   interfaces.IKlineStore
	Fetcher interfaces.IKlineFetcher
	Logger  *logger.Logger

	inbox   chan Event
	persist chan persistJob

	mu        sync.RWMutex
	listeners map[EventType][]Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewKlineWorker(store interfaces.IKlineStore, fetcher interfaces.IKlineFetcher, log *logger.Logger) *KlineWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &KlineWorker{
		Store:     store,
		Fetcher:   fetcher,
		Logger:    log,
		inbox:     make(chan Event, inboxCapacity),
		persist:   make(chan persistJob, persistQueueCapacity),
		listeners: make(map[EventType][]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// -----------------------------------------------------------------------------

// On registers a listener for one event type. Multiple listeners per type
// fan out in registration order. Listeners run on the worker goroutines;
// keep them short or hand off to your own channel.
func (w *KlineWorker) On(eventType EventType, listener Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners[eventType] = append(w.listeners[eventType], listener)
}

// -----------------------------------------------------------------------------

// Send enqueues a request event. Returns an error when the worker has been
// stopped or the inbox is saturated; requests are never silently dropped.
func (w *KlineWorker) Send(event Event) error {
	select {
	case <-w.ctx.Done():
		return fmt.Errorf("worker is stopped")
	default:
	}

	select {
	case w.inbox <- event:
		return nil
	default:
		return fmt.Errorf("worker inbox is full")
	}
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) Start() {
	w.wg.Add(2)
	go w.run()
	go w.runPersister()
	w.Logger.Info("Kline worker started")
}

// Stop drains nothing: in-flight handlers finish, queued events are
// discarded. Pending persistence jobs already in the queue are flushed.
func (w *KlineWorker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.Logger.Info("Kline worker stopped")
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event := <-w.inbox:
			w.safeHandle(event)
		}
	}
}

// safeHandle converts a handler panic into an Error event instead of
// killing the worker goroutine.
func (w *KlineWorker) safeHandle(event Event) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("Handler panic on %s: %v", event.Type, r)
			w.emit(Event{Type: EventError, Payload: fmt.Errorf("handler panic on %s: %v", event.Type, r)})
		}
	}()
	w.handle(event)
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) handle(event Event) {
	switch event.Type {
	case EventFetchPoints:
		payload, ok := event.Payload.(models.MFetchPointsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		w.handleFetchPoints(payload)

	case EventFetchTransactions:
		payload, ok := event.Payload.(models.MFetchTransactionsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		w.handleFetchTransactions(payload)

	case EventLoadPoints:
		payload, ok := event.Payload.(models.MLoadPointsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		w.handleLoadPoints(payload)

	case EventLoadTransactions:
		payload, ok := event.Payload.(models.MLoadTransactionsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		w.handleLoadTransactions(payload)

	case EventNewPoints:
		payload, ok := event.Payload.(models.MPointsBatch)
		if !ok {
			w.badPayload(event)
			return
		}
		w.enqueuePersist(persistJob{
			token0:   payload.Token0,
			token1:   payload.Token1,
			interval: payload.Interval,
			points:   payload.Points,
		})

	case EventNewTransactions:
		payload, ok := event.Payload.(models.MTransactionsBatch)
		if !ok {
			w.badPayload(event)
			return
		}
		w.enqueuePersist(persistJob{
			token0:       payload.Token0,
			token1:       payload.Token1,
			transactions: payload.Transactions,
		})

	case EventSortPoints:
		payload, ok := event.Payload.(models.MSortPointsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		merged := analysis.MergePoints(payload.OriginPoints, payload.NewPoints, payload.KeepCount, payload.Reverse)
		w.emit(Event{Type: EventSortedPoints, Payload: models.MSortedPointsPayload{Points: merged}})

	case EventSortTransactions:
		payload, ok := event.Payload.(models.MSortTransactionsPayload)
		if !ok {
			w.badPayload(event)
			return
		}
		merged := analysis.MergeTransactions(payload.OriginTransactions, payload.NewTransactions, payload.TokenReversed, payload.KeepCount, payload.Reverse)
		w.emit(Event{Type: EventSortedTransactions, Payload: models.MSortedTransactionsPayload{Transactions: merged}})

	default:
		w.Logger.Warning("Unknown event type: %s", event.Type)
		w.emit(Event{Type: EventError, Payload: fmt.Errorf("unknown event type %q", event.Type)})
	}
}

func (w *KlineWorker) badPayload(event Event) {
	w.Logger.Error("Bad payload type %T for event %s", event.Payload, event.Type)
	w.emit(Event{Type: EventError, Payload: fmt.Errorf("bad payload type %T for event %s", event.Payload, event.Type)})
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) handleFetchPoints(payload models.MFetchPointsPayload) {
	batch, err := w.Fetcher.FetchPoints(w.ctx, payload.Token0, payload.Token1, payload.Interval, payload.StartAt, payload.EndAt)
	if err != nil {
		w.Logger.Error("FetchPoints %s/%s/%s failed: %v", payload.Token0, payload.Token1, payload.Interval, err)
		w.emit(Event{Type: EventError, Payload: err})
		return
	}

	// Respond before persisting; durability is acked separately.
	w.emit(Event{Type: EventFetchedPoints, Payload: *batch})

	w.enqueuePersist(persistJob{
		token0:   batch.Token0,
		token1:   batch.Token1,
		interval: batch.Interval,
		points:   batch.Points,
	})
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) handleFetchTransactions(payload models.MFetchTransactionsPayload) {
	transactions, err := w.Fetcher.FetchTransactions(w.ctx, payload.Token0, payload.Token1, payload.StartAt, payload.EndAt)
	if err != nil {
		w.Logger.Error("FetchTransactions %s/%s failed: %v", payload.Token0, payload.Token1, err)
		w.emit(Event{Type: EventError, Payload: err})
		return
	}

	w.emit(Event{Type: EventFetchedTransactions, Payload: models.MFetchedTransactionsPayload{
		Token0:       payload.Token0,
		Token1:       payload.Token1,
		StartAt:      payload.StartAt,
		EndAt:        payload.EndAt,
		Transactions: transactions,
	}})

	w.enqueuePersist(persistJob{
		token0:       payload.Token0,
		token1:       payload.Token1,
		transactions: transactions,
	})
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) handleLoadPoints(payload models.MLoadPointsPayload) {
	points, err := w.Store.QueryPoints(payload.Token0, payload.Token1, payload.Interval, payload.Query)
	if err != nil {
		w.Logger.Error("LoadPoints %s/%s/%s failed: %v", payload.Token0, payload.Token1, payload.Interval, err)
		w.emit(Event{Type: EventError, Payload: err})
		return
	}

	w.emit(Event{Type: EventLoadedPoints, Payload: models.MLoadedPointsPayload{
		Token0:   payload.Token0,
		Token1:   payload.Token1,
		Interval: payload.Interval,
		Query:    payload.Query,
		Points:   points,
	}})
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) handleLoadTransactions(payload models.MLoadTransactionsPayload) {
	transactions, err := w.Store.QueryTransactions(payload.Token0, payload.Token1, payload.TokenReversed, payload.Query)
	if err != nil {
		w.Logger.Error("LoadTransactions %s/%s failed: %v", payload.Token0, payload.Token1, err)
		w.emit(Event{Type: EventError, Payload: err})
		return
	}

	w.emit(Event{Type: EventLoadedTransactions, Payload: models.MLoadedTransactionsPayload{
		Token0:        payload.Token0,
		Token1:        payload.Token1,
		TokenReversed: payload.TokenReversed,
		Query:         payload.Query,
		Transactions:  transactions,
	}})
}

// -----------------------------------------------------------------------------

// enqueuePersist hands a write off to the persister goroutine. A full queue
// blocks the handler loop rather than losing data; the cache would silently
// go stale otherwise.
func (w *KlineWorker) enqueuePersist(job persistJob) {
	if len(job.points) == 0 && len(job.transactions) == 0 {
		return
	}
	select {
	case <-w.ctx.Done():
	case w.persist <- job:
	}
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) runPersister() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Flush whatever is already queued before exiting.
			for {
				select {
				case job := <-w.persist:
					w.runPersistJob(job)
				default:
					return
				}
			}
		case job := <-w.persist:
			w.runPersistJob(job)
		}
	}
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) runPersistJob(job persistJob) {
	if len(job.points) > 0 {
		for start := 0; start < len(job.points); start += persistChunkSize {
			end := start + persistChunkSize
			if end > len(job.points) {
				end = len(job.points)
			}
			if err := w.Store.PutPoints(job.token0, job.token1, job.interval, job.points[start:end]); err != nil {
				w.Logger.Error("Persist points chunk %s/%s/%s failed: %v", job.token0, job.token1, job.interval, err)
			}
		}
		w.emit(Event{Type: EventPersistedPoints, Payload: models.MPersistedPointsPayload{
			Token0:   job.token0,
			Token1:   job.token1,
			Interval: job.interval,
			Count:    len(job.points),
		}})
	}

	if len(job.transactions) > 0 {
		for start := 0; start < len(job.transactions); start += persistChunkSize {
			end := start + persistChunkSize
			if end > len(job.transactions) {
				end = len(job.transactions)
			}
			if err := w.Store.PutTransactions(job.token0, job.token1, job.transactions[start:end]); err != nil {
				w.Logger.Error("Persist transactions chunk %s/%s failed: %v", job.token0, job.token1, err)
			}
		}
		w.emit(Event{Type: EventPersistedTransactions, Payload: models.MPersistedTransactionsPayload{
			Token0: job.token0,
			Token1: job.token1,
			Count:  len(job.transactions),
		}})
	}
}

// -----------------------------------------------------------------------------

func (w *KlineWorker) emit(event Event) {
	w.mu.RLock()
	registered := w.listeners[event.Type]
	w.mu.RUnlock()

	for _, listener := range registered {
		listener(event)
	}
}
