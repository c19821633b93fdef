package matching

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultex/exchange-api/internal/orderbook"
)

// Processor periodically re-runs matching over every asset with open orders.
// Order creation already triggers a pass, but a triggered pass can fail or
// race a concurrent one; the sweep makes the book converge regardless.
type Processor struct {
	store    *orderbook.Store
	engine   *Engine
	interval time.Duration
}

func NewProcessor(store *orderbook.Store, engine *Engine, interval time.Duration) *Processor {
	return &Processor{
		store:    store,
		engine:   engine,
		interval: interval,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "matching_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting matching processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down matching processor")
			return
		case <-ticker.C:
			if err := p.sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("matching sweep failed")
			}
		}
	}
}

func (p *Processor) sweep(ctx context.Context) error {
	logger := log.With().Str("component", "matching_processor").Logger()

	assets, err := p.store.PendingAssets()
	if err != nil {
		return err
	}

	for _, asset := range assets {
		trades, err := p.engine.RunToExhaustion(ctx, asset)
		if err != nil {
			// Keep sweeping the other assets; this pair retries next tick.
			logger.Warn().Str("asset", asset).Err(err).Msg("matching pass failed during sweep")
			continue
		}
		if trades > 0 {
			logger.Info().Str("asset", asset).Int("trades", trades).Msg("sweep executed trades")
		}
	}
	return nil
}
