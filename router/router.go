// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/dispatch"
	"github.com/danielhkuo/helpline-router/handlers"
	"github.com/danielhkuo/helpline-router/middleware"
)

// Messenger is the relay as the webhooks use it.
type Messenger interface {
	handlers.DeliveryRecorder
	handlers.Outreacher
}

// Services are the components behind the HTTP surface.
type Services struct {
	Inbound    handlers.InboundHandler
	Relay      Messenger
	Weights    handlers.WeightAdmin
	Stats      handlers.StatsStore
	Dispatcher dispatch.Dispatcher
}

func NewRouter(cfg cliparse.Config, svc Services) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	twilioHandler := handlers.NewTwilioHandler(cfg, svc.Inbound, svc.Relay)
	slackHandler := handlers.NewSlackHandler(cfg, svc.Dispatcher)
	pushHandler := handlers.NewPushHandler(cfg, svc.Relay)
	adminHandler := handlers.NewAdminHandler(cfg, svc.Weights, svc.Stats)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// SMS gateway webhooks
	mux.HandleFunc("POST /twilio-pull", middleware.WithLogging(twilioHandler.Pull))
	mux.HandleFunc("POST /twilio-push", middleware.WithLogging(twilioHandler.Push))
	mux.HandleFunc("POST /twilio-callback", middleware.WithLogging(twilioHandler.Callback))

	// Chat platform webhooks
	mux.HandleFunc("POST /slack", middleware.WithLogging(slackHandler.Events))
	mux.HandleFunc("POST /slack-interactivity", middleware.WithLogging(slackHandler.Interactivity))

	// Admin operations (X-Admin-Key)
	mux.HandleFunc("POST /push", middleware.WithLogging(pushHandler.Push))
	mux.HandleFunc("GET /admin/channel-weights", middleware.WithLogging(adminHandler.GetChannelWeights))
	mux.HandleFunc("POST /admin/channel-weights", middleware.WithLogging(adminHandler.SetChannelWeights))
	mux.HandleFunc("GET /admin/stats", middleware.WithLogging(adminHandler.Stats))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("helpline-router"))
	})

	return mux
}
