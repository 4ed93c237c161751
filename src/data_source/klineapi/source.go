package klineapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"kline-cache/src/helpers"
	"kline-cache/src/interfaces"
	"kline-cache/src/logger"
	"kline-cache/src/models"
)

// -----------------------------------------------------------------------------
// KlineAPISource backfills bounded time ranges from the remote kline
// history service. The server may return fewer or more records than the
// window implies; callers must not assume completeness. Every timestamp is
// normalized to integer milliseconds at decode. No internal retry: a
// transport failure surfaces as a FetchError and the caller decides.
// -----------------------------------------------------------------------------

type KlineAPISource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewKlineAPISource(cfg *models.MConfig, netMgr interfaces.INetworkManager) *KlineAPISource {
	return &KlineAPISource{
		Config:  cfg,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg.LogLevel, "KlineAPISource"),
	}
}

// -----------------------------------------------------------------------------

// FetchPoints retrieves candles for one series and time range.
func (s *KlineAPISource) FetchPoints(ctx context.Context, token0, token1 string, interval models.Interval, startAt, endAt int64) (*models.MPointsBatch, error) {
	url := fmt.Sprintf("%s/points/token0/%s/token1/%s/start_at/%d/end_at/%d/interval/%s",
		s.Config.Kline.HTTPURL, token0, token1, startAt, endAt, interval)

	body, err := s.Network.Get(ctx, url, nil)
	if err != nil {
		return nil, helpers.NewFetchError(fmt.Sprintf("fetch points %s/%s/%s", token0, token1, interval), err)
	}

	var batch models.MPointsBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, helpers.NewFetchError(fmt.Sprintf("decode points %s/%s/%s", token0, token1, interval), err)
	}

	// The service echoes its own end_at; pin it to the requested bound so
	// callers can correlate responses with their request windows.
	batch.EndAt = models.MTimestampMs(endAt)

	// Drop records that decoded without a usable timestamp.
	valid := batch.Points[:0]
	for _, p := range batch.Points {
		if p.Timestamp <= 0 {
			s.Logger.Debug("Dropping point without timestamp for %s/%s", token0, token1)
			continue
		}
		valid = append(valid, p)
	}
	batch.Points = valid

	sort.Slice(batch.Points, func(i, j int) bool {
		return batch.Points[i].Timestamp < batch.Points[j].Timestamp
	})

	s.Logger.Debug("Fetched %d points for %s/%s/%s", len(batch.Points), token0, token1, interval)
	return &batch, nil
}

// -----------------------------------------------------------------------------

// FetchTransactions retrieves transactions for one pair and time range.
func (s *KlineAPISource) FetchTransactions(ctx context.Context, token0, token1 string, startAt, endAt int64) ([]models.MTransaction, error) {
	url := fmt.Sprintf("%s/transactions/token0/%s/token1/%s/start_at/%d/end_at/%d",
		s.Config.Kline.HTTPURL, token0, token1, startAt, endAt)

	body, err := s.Network.Get(ctx, url, nil)
	if err != nil {
		return nil, helpers.NewFetchError(fmt.Sprintf("fetch transactions %s/%s", token0, token1), err)
	}

	var transactions []models.MTransaction
	if err := json.Unmarshal(body, &transactions); err != nil {
		return nil, helpers.NewFetchError(fmt.Sprintf("decode transactions %s/%s", token0, token1), err)
	}

	for i := range transactions {
		transactions[i].Normalize()
	}

	s.Logger.Debug("Fetched %d transactions for %s/%s", len(transactions), token0, token1)
	return transactions, nil
}
