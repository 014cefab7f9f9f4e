package handler

import (
	"net/http"

	"github.com/pulselog/pulselog/internal/hub"
	"go.uber.org/zap"
)

// HealthHandler creates a liveness handler.
func HealthHandler(broadcastHub *hub.BroadcastHub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJson(w, HealthResponseDTO{
			Status:      "ok",
			Subscribers: broadcastHub.SubscriptionCount(),
		}, logger)
	}
}
