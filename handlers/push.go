// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/middleware"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
)

// Admin key scopes
const (
	ScopePush           = "push"
	ScopeChannelWeights = "channel-weights"
	ScopeStats          = "stats"
)

// maxPushBatch bounds the numbers accepted by one /push request.
const maxPushBatch = 500

// Outreacher texts voters who may not have a session yet.
type Outreacher interface {
	Outreach(ctx context.Context, from, to, text string) error
}

// PushHandler sends campaign texts from a PUSH number, paced so the
// gateway's per-number rate is not exceeded.
type PushHandler struct {
	cfg      cliparse.Config
	outreach Outreacher
	limiter  *rate.Limiter
}

func NewPushHandler(cfg cliparse.Config, outreach Outreacher) *PushHandler {
	limit := rate.Inf
	if cfg.PushInterval > 0 {
		limit = rate.Every(cfg.PushInterval)
	}
	return &PushHandler{cfg: cfg, outreach: outreach, limiter: rate.NewLimiter(limit, 1)}
}

// Push handles POST /push
func (h *PushHandler) Push(w http.ResponseWriter, r *http.Request) {
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(ScopePush, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var req models.PushRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if _, ok := h.cfg.PushNumberRegions[req.GatewayPhoneNumber]; !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "gateway_phone_number is not a configured push number")
		return
	}
	if len(req.VoterPhoneNumbers) == 0 || len(req.VoterPhoneNumbers) > maxPushBatch {
		middleware.ErrorResponse(w, http.StatusBadRequest, "voter_phone_numbers must contain 1 to 500 numbers")
		return
	}

	var resp models.PushResponse
	for _, to := range req.VoterPhoneNumbers {
		if err := h.limiter.Wait(r.Context()); err != nil {
			slog.Warn("push canceled", "gateway", req.GatewayPhoneNumber, "sent", resp.Sent, "error", err)
			break
		}
		err := h.outreach.Outreach(r.Context(), req.GatewayPhoneNumber, to, req.Message)
		switch {
		case err == nil:
			resp.Sent++
		case errors.Is(err, relay.ErrSuppressed):
			resp.Skipped++
		default:
			slog.Error("push text failed", "voter", auth.MaskPhone(to), "gateway", req.GatewayPhoneNumber, "error", err)
			resp.Failed = append(resp.Failed, auth.MaskPhone(to))
		}
	}

	slog.Info("push completed",
		"gateway", req.GatewayPhoneNumber,
		"sent", resp.Sent,
		"skipped", resp.Skipped,
		"failed", len(resp.Failed),
	)
	middleware.JSONResponse(w, http.StatusOK, resp)
}
