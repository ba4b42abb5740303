// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/balancer"
	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/middleware"
	"github.com/danielhkuo/helpline-router/models"
)

// WeightAdmin reads and replaces weight table partitions.
type WeightAdmin interface {
	Weights(ctx context.Context, regionName string, channelType models.ChannelType) ([]models.ChannelWeight, error)
	CheckChannelWeights(regionName string, channelType models.ChannelType, weights []models.ChannelWeight) ([]string, error)
	SetChannelWeights(ctx context.Context, regionName string, channelType models.ChannelType, weights []models.ChannelWeight) ([]string, error)
}

// StatsStore answers the reporting queries.
type StatsStore interface {
	UnclaimedVoters(ctx context.Context, channelID string) ([]models.UnclaimedVoter, error)
	NeedsAttentionByChannel(ctx context.Context) ([]models.ChannelStat, error)
	NeedsAttentionByVolunteer(ctx context.Context) ([]models.VolunteerStat, error)
}

type AdminHandler struct {
	cfg     cliparse.Config
	weights WeightAdmin
	stats   StatsStore
}

func NewAdminHandler(cfg cliparse.Config, weights WeightAdmin, stats StatsStore) *AdminHandler {
	return &AdminHandler{cfg: cfg, weights: weights, stats: stats}
}

func (h *AdminHandler) authorized(w http.ResponseWriter, r *http.Request, scope string) bool {
	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(scope, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return false
	}
	return true
}

// GetChannelWeights handles GET /admin/channel-weights?region=&channel_type=
func (h *AdminHandler) GetChannelWeights(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r, ScopeChannelWeights) {
		return
	}

	regionName := r.URL.Query().Get("region")
	if regionName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "region is required")
		return
	}
	channelType := models.ChannelType(r.URL.Query().Get("channel_type"))
	if channelType == "" {
		channelType = models.ChannelTypeNormal
	}

	rows, err := h.weights.Weights(r.Context(), regionName, channelType)
	if err != nil {
		slog.Error("failed to load channel weights", "region", regionName, "channel_type", channelType, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if rows == nil {
		rows = []models.ChannelWeight{}
	}
	middleware.JSONResponse(w, http.StatusOK, models.ChannelWeightsResponse{Weights: rows})
}

// SetChannelWeights handles POST /admin/channel-weights. With dry_run set
// it only reports the warnings the write would produce.
func (h *AdminHandler) SetChannelWeights(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r, ScopeChannelWeights) {
		return
	}

	var req models.SetChannelWeightsRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var warnings []string
	var err error
	if req.DryRun {
		warnings, err = h.weights.CheckChannelWeights(req.Region, req.ChannelType, req.Weights)
	} else {
		warnings, err = h.weights.SetChannelWeights(r.Context(), req.Region, req.ChannelType, req.Weights)
	}
	if errors.Is(err, balancer.ErrInvalidWeights) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to set channel weights", "region", req.Region, "channel_type", req.ChannelType, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := models.SetChannelWeightsResponse{DryRun: req.DryRun, Warnings: warnings}
	if !req.DryRun {
		resp.Applied = len(req.Weights)
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Stats handles GET /admin/stats?channel=
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r, ScopeStats) {
		return
	}

	ctx := r.Context()
	unclaimed, err := h.stats.UnclaimedVoters(ctx, r.URL.Query().Get("channel"))
	if err != nil {
		slog.Error("failed to query unclaimed voters", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	byChannel, err := h.stats.NeedsAttentionByChannel(ctx)
	if err != nil {
		slog.Error("failed to query needs attention by channel", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	byVolunteer, err := h.stats.NeedsAttentionByVolunteer(ctx)
	if err != nil {
		slog.Error("failed to query needs attention by volunteer", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := models.StatsResponse{
		Unclaimed:               unclaimed,
		NeedsAttentionChannels:  byChannel,
		NeedsAttentionVolunteer: byVolunteer,
	}
	if resp.Unclaimed == nil {
		resp.Unclaimed = []models.UnclaimedVoter{}
	}
	if resp.NeedsAttentionChannels == nil {
		resp.NeedsAttentionChannels = []models.ChannelStat{}
	}
	if resp.NeedsAttentionVolunteer == nil {
		resp.NeedsAttentionVolunteer = []models.VolunteerStat{}
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}
