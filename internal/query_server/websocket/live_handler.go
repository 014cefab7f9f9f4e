package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pulselog/pulselog/internal/hub"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	"go.uber.org/zap"
)

const recentLogsLimit = 10

const (
	commandPing       = "ping"
	commandGetKPIs    = "get_kpis"
	commandRecentLogs = "get_recent_logs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers connect from arbitrary dashboard origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveHandler creates the websocket endpoint streaming KPI updates, new
// logs and anomaly alerts to observers.
func LiveHandler(
	ctx context.Context,
	broadcastHub *hub.BroadcastHub,
	aggregator kpiService.Aggregator,
	logStore logstoreService.LogStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Error encountered when upgrading connection", zap.Error(err))
			return
		}

		sub := broadcastHub.Subscribe()
		logger.Info("Observer connected",
			zap.String("subscription_id", sub.Id()),
			zap.Int("subscribers", broadcastHub.SubscriptionCount()))

		broadcastHub.Send(sub, hub.EventInitialKPIs, aggregator.Query(kpiModel.Range1h, kpiService.GlobalKey))

		done := make(chan struct{})
		go writeLoop(conn, sub, done, logger)
		readLoop(ctx, conn, sub, broadcastHub, aggregator, logStore, logger)

		broadcastHub.Unsubscribe(sub)
		<-done
		logger.Info("Observer disconnected", zap.String("subscription_id", sub.Id()))
	}
}

// writeLoop drains the subscription queue onto the wire until the
// subscription is closed, by unsubscribe or heartbeat eviction, then
// closes the connection so the read loop unblocks.
func writeLoop(conn *websocket.Conn, sub *hub.Subscription, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	for event := range sub.Events() {
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug("Error encountered when writing event",
				zap.String("subscription_id", sub.Id()), zap.Error(err))
			break
		}
	}
	if err := conn.Close(); err != nil {
		logger.Debug("Error encountered when closing connection",
			zap.String("subscription_id", sub.Id()), zap.Error(err))
	}
}

// readLoop consumes observer commands. Any inbound message counts as a
// heartbeat; unknown commands are ignored.
func readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sub *hub.Subscription,
	broadcastHub *hub.BroadcastHub,
	aggregator kpiService.Aggregator,
	logStore logstoreService.LogStore,
	logger *zap.Logger,
) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Observer connection error", zap.Error(err))
			}
			return
		}
		sub.Heartbeat()

		switch strings.TrimSpace(string(message)) {
		case commandPing:
			broadcastHub.Send(sub, hub.EventPong, "pong")
		case commandGetKPIs:
			broadcastHub.Send(sub, hub.EventKPIUpdate,
				aggregator.Query(kpiModel.Range1h, kpiService.GlobalKey))
		case commandRecentLogs:
			logs, err := logStore.RecentLogs(ctx, recentLogsLimit, "")
			if err != nil {
				logger.Error("Error encountered when fetching recent logs", zap.Error(err))
				continue
			}
			broadcastHub.Send(sub, hub.EventRecentLogs, logs)
		}
	}
}
