package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kline-cache/src/config"
	"kline-cache/src/data_source/klineapi"
	"kline-cache/src/helpers"
	"kline-cache/src/interfaces"
	"kline-cache/src/logger"
	"kline-cache/src/models"
	"kline-cache/src/network"
	"kline-cache/src/push"
	"kline-cache/src/server"
	"kline-cache/src/storage"
	"kline-cache/src/utils"
	"kline-cache/src/worker"
)

// -----------------------------------------------------------------------------

const (
	backfillRetries   = 3
	backfillBaseDelay = 2 * time.Second
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// 2. Setup Storage
	var store interfaces.IKlineStore

	switch config.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(config.MConfig, appLogger)
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate store: %v", err)
	}
	defer store.Close()

	// 3. Remote fetch path
	var networkManager interfaces.INetworkManager = network.NewNetworkManager(config.MConfig, appLogger)
	var fetcher interfaces.IKlineFetcher = klineapi.NewKlineAPISource(config.MConfig, networkManager)

	// 4. In-memory working set for the latest-window API
	seriesCache := utils.NewSeriesCache(config.Cache.MaxPoints, appLogger)

	// 5. Background sync worker
	syncWorker := worker.NewKlineWorker(store, fetcher, appLogger)
	syncWorker.On(worker.EventError, func(event worker.Event) {
		appLogger.Warning("Worker error: %v", event.Payload)
	})
	syncWorker.On(worker.EventPersistedPoints, func(event worker.Event) {
		if ack, ok := event.Payload.(models.MPersistedPointsPayload); ok {
			appLogger.Debug("Persisted %d points for %s/%s/%s", ack.Count, ack.Token0, ack.Token1, ack.Interval)
		}
	})
	syncWorker.Start()
	defer syncWorker.Stop()

	// 6. Local API server and fan-out hub
	srv := server.NewAPIServer(config.MConfig, appLogger, store, seriesCache)

	// 7. Push channel: every notification feeds the worker (persistence),
	// the series cache (latest window) and the local hub (re-publish).
	channel := push.NewPushChannel(config.MConfig, appLogger)

	channel.WithOnKline(func(payload models.MKlinePayload) {
		for interval, batches := range payload {
			for _, batch := range batches {
				if batch.Interval == "" {
					batch.Interval = interval
				}
				seriesCache.AddPoints(batch.Token0, batch.Token1, batch.Interval, batch.Points)
				if err := syncWorker.Send(worker.Event{Type: worker.EventNewPoints, Payload: batch}); err != nil {
					appLogger.Warning("Dropping kline batch for %s/%s: %v", batch.Token0, batch.Token1, err)
				}
			}
		}
		republish(srv, appLogger, models.NotificationKline, payload)
	})

	channel.WithOnTransactions(func(payload models.MTransactionsPayload) {
		for _, batch := range payload {
			if err := syncWorker.Send(worker.Event{Type: worker.EventNewTransactions, Payload: batch}); err != nil {
				appLogger.Warning("Dropping transactions batch for %s/%s: %v", batch.Token0, batch.Token1, err)
			}
		}
		republish(srv, appLogger, models.NotificationTransactions, payload)
	})

	channel.WithOnError(func(err error) {
		appLogger.Warning("Push channel: %v", err)
	})

	// 8. Startup backfill. The push channel only carries data from now on;
	// the recent window comes over HTTP so restarts leave no gap.
	runBackfill(config.MConfig, syncWorker, appLogger)

	// 9. Connect the push channel (reconnects on its own from here)
	if err := channel.Connect(); err != nil {
		appLogger.Warning("Initial push connect failed, reconnecting in background: %v", err)
	}
	defer channel.Close()

	// 10. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	appLogger.Info("Kline cache running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
}

// -----------------------------------------------------------------------------

// runBackfill enqueues one fetch per configured pair and interval covering
// the configured backfill window. Enqueueing retries with backoff; the
// fetches themselves run on the worker.
func runBackfill(cfg *models.MConfig, syncWorker *worker.KlineWorker, appLogger *logger.Logger) {
	endAt := time.Now().UnixMilli()
	startAt := endAt - int64(cfg.Kline.BackfillHours)*time.Hour.Milliseconds()

	for _, pair := range cfg.Kline.Pairs {
		for _, interval := range cfg.Kline.Intervals {
			payload := models.MFetchPointsPayload{
				Token0:   pair.Token0,
				Token1:   pair.Token1,
				Interval: interval,
				StartAt:  startAt,
				EndAt:    endAt,
			}
			operation := fmt.Sprintf("backfill points %s/%s/%s", pair.Token0, pair.Token1, interval)
			err := helpers.RetryWithBackoff(operation, backfillRetries, backfillBaseDelay, func() error {
				return syncWorker.Send(worker.Event{Type: worker.EventFetchPoints, Payload: payload})
			})
			if err != nil {
				appLogger.Error("Backfill enqueue failed for %s/%s/%s: %v", pair.Token0, pair.Token1, interval, err)
			}
		}

		txPayload := models.MFetchTransactionsPayload{
			Token0:  pair.Token0,
			Token1:  pair.Token1,
			StartAt: startAt,
			EndAt:   endAt,
		}
		operation := fmt.Sprintf("backfill transactions %s/%s", pair.Token0, pair.Token1)
		err := helpers.RetryWithBackoff(operation, backfillRetries, backfillBaseDelay, func() error {
			return syncWorker.Send(worker.Event{Type: worker.EventFetchTransactions, Payload: txPayload})
		})
		if err != nil {
			appLogger.Error("Backfill enqueue failed for %s/%s: %v", pair.Token0, pair.Token1, err)
		}
	}
}

// -----------------------------------------------------------------------------

// republish forwards one upstream notification to local hub consumers in
// the upstream frame shape.
func republish(srv *server.APIServer, appLogger *logger.Logger, kind string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		appLogger.Error("Failed to encode %s notification: %v", kind, err)
		return
	}
	srv.Broadcast(&models.MNotification{Notification: kind, Value: raw})
}
