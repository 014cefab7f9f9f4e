package service

import (
	"context"
	"time"

	"github.com/pulselog/pulselog/internal/hub"
	"github.com/pulselog/pulselog/internal/kpi/model"
	"go.uber.org/zap"
)

const DefaultBroadcastInterval = 10 * time.Second

// Broadcaster pushes the current global KPI snapshot to all hub
// subscribers on a fixed interval.
type Broadcaster struct {
	aggregator   Aggregator
	broadcastHub *hub.BroadcastHub
	interval     time.Duration
	logger       *zap.Logger
}

func NewBroadcaster(
	aggregator Aggregator,
	broadcastHub *hub.BroadcastHub,
	interval time.Duration,
	logger *zap.Logger,
) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &Broadcaster{
		aggregator:   aggregator,
		broadcastHub: broadcastHub,
		interval:     interval,
		logger:       logger,
	}
}

// Run blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("KPI broadcaster stopped")
			return
		case <-ticker.C:
			if b.broadcastHub.SubscriptionCount() == 0 {
				continue
			}
			b.broadcastHub.Publish(hub.EventKPIUpdate, b.aggregator.Query(model.Range1h, GlobalKey))
		}
	}
}
