// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/balancer"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/testutil"
)

func adminKey(scope string) map[string]string {
	return map[string]string{"X-Admin-Key": auth.GenerateAdminKey(scope, testutil.TestAdminSalt)}
}

func newAdminHandler(log *testutil.MemoryLog) *AdminHandler {
	b := balancer.New(cache.NewMemoryStore(), log, nil)
	return NewAdminHandler(testutil.GetTestConfig(), b, log)
}

func TestChannelWeights_SetAndGet(t *testing.T) {
	h := newAdminHandler(testutil.NewMemoryLog())

	req := testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
		Region:      "Ohio",
		ChannelType: models.ChannelTypeNormal,
		Weights: []models.ChannelWeight{
			{EntryPoint: models.EntryPointPull, ChannelName: "ohio-0", Weight: 3},
			{EntryPoint: models.EntryPointPull, ChannelName: "ohio-1", Weight: 1},
		},
	}, adminKey(ScopeChannelWeights))
	w := httptest.NewRecorder()
	h.SetChannelWeights(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	var setResp models.SetChannelWeightsResponse
	testutil.AssertJSON(t, w, &setResp)
	assert.Equal(t, 2, setResp.Applied)
	// PUSH has no rows in this partition
	require.Len(t, setResp.Warnings, 1)
	assert.Contains(t, setResp.Warnings[0], "PUSH")

	w = httptest.NewRecorder()
	h.GetChannelWeights(w, testutil.MakeRequest("GET", "/admin/channel-weights?region=Ohio", nil, adminKey(ScopeChannelWeights)))

	testutil.AssertStatus(t, w, http.StatusOK)
	var getResp models.ChannelWeightsResponse
	testutil.AssertJSON(t, w, &getResp)
	require.Len(t, getResp.Weights, 2)
	assert.Equal(t, "ohio-0", getResp.Weights[0].ChannelName)
	assert.Equal(t, 3, getResp.Weights[0].Weight)
	assert.Equal(t, "Ohio", getResp.Weights[0].Region)
}

func TestChannelWeights_DryRun(t *testing.T) {
	log := testutil.NewMemoryLog()
	h := newAdminHandler(log)

	req := testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
		Region:      "Ohio",
		ChannelType: models.ChannelTypeNormal,
		Weights: []models.ChannelWeight{
			{EntryPoint: models.EntryPointPull, ChannelName: "ohio-0", Weight: 0},
		},
		DryRun: true,
	}, adminKey(ScopeChannelWeights))
	w := httptest.NewRecorder()
	h.SetChannelWeights(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.SetChannelWeightsResponse
	testutil.AssertJSON(t, w, &resp)
	assert.True(t, resp.DryRun)
	assert.Zero(t, resp.Applied)
	// both entry points are left without weight
	assert.Len(t, resp.Warnings, 2)

	rows, err := log.ChannelWeights(context.Background(), "Ohio", models.ChannelTypeNormal)
	require.NoError(t, err)
	assert.Empty(t, rows, "a dry run writes nothing")

	req = testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
		Region:      "Ohio",
		ChannelType: models.ChannelTypeNormal,
		Weights: []models.ChannelWeight{
			{EntryPoint: models.EntryPointPull, ChannelName: "ohio-0", Weight: -1},
		},
		DryRun: true,
	}, adminKey(ScopeChannelWeights))
	w = httptest.NewRecorder()
	h.SetChannelWeights(w, req)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestChannelWeights_SQLite(t *testing.T) {
	store := db.NewStore(testutil.SetupTestDB(t))
	h := NewAdminHandler(testutil.GetTestConfig(), balancer.New(cache.NewMemoryStore(), store, nil), store)

	req := testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
		Region:      "*",
		ChannelType: models.ChannelTypeNormal,
		Weights: []models.ChannelWeight{
			{EntryPoint: models.EntryPointPull, ChannelName: "national-0", Weight: 1},
			{EntryPoint: models.EntryPointPush, ChannelName: "national-0", Weight: 1},
		},
	}, adminKey(ScopeChannelWeights))
	w := httptest.NewRecorder()
	h.SetChannelWeights(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	h.GetChannelWeights(w, testutil.MakeRequest("GET", "/admin/channel-weights?region=*", nil, adminKey(ScopeChannelWeights)))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.ChannelWeightsResponse
	testutil.AssertJSON(t, w, &resp)
	require.Len(t, resp.Weights, 2)
	assert.Equal(t, models.EntryPointPull, resp.Weights[0].EntryPoint)
	assert.Equal(t, models.EntryPointPush, resp.Weights[1].EntryPoint)

	w = httptest.NewRecorder()
	h.Stats(w, testutil.MakeRequest("GET", "/admin/stats", nil, adminKey(ScopeStats)))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestChannelWeights_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		req    func() *http.Request
		set    bool
		status int
	}{
		{
			name:   "get without key",
			req:    func() *http.Request { return testutil.MakeRequest("GET", "/admin/channel-weights?region=Ohio", nil, nil) },
			status: http.StatusUnauthorized,
		},
		{
			name: "get without region",
			req: func() *http.Request {
				return testutil.MakeRequest("GET", "/admin/channel-weights", nil, adminKey(ScopeChannelWeights))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "set with stats key",
			req: func() *http.Request {
				return testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{Region: "Ohio"}, adminKey(ScopeStats))
			},
			set:    true,
			status: http.StatusUnauthorized,
		},
		{
			name: "negative weight",
			req: func() *http.Request {
				return testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
					Region:      "Ohio",
					ChannelType: models.ChannelTypeNormal,
					Weights:     []models.ChannelWeight{{EntryPoint: models.EntryPointPull, ChannelName: "ohio-0", Weight: -1}},
				}, adminKey(ScopeChannelWeights))
			},
			set:    true,
			status: http.StatusBadRequest,
		},
		{
			name: "unknown channel type",
			req: func() *http.Request {
				return testutil.MakeRequest("POST", "/admin/channel-weights", models.SetChannelWeightsRequest{
					Region:      "Ohio",
					ChannelType: "VIP",
				}, adminKey(ScopeChannelWeights))
			},
			set:    true,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAdminHandler(testutil.NewMemoryLog())
			w := httptest.NewRecorder()
			if tt.set {
				h.SetChannelWeights(w, tt.req())
			} else {
				h.GetChannelWeights(w, tt.req())
			}
			testutil.AssertStatus(t, w, tt.status)
		})
	}
}

func TestStats(t *testing.T) {
	log := testutil.NewMemoryLog()
	require.NoError(t, log.InsertThread(context.Background(), models.ThreadRecord{
		ThreadTs:           "1700000000.000100",
		ChannelID:          "C0OHIO",
		VoterID:            auth.VoterID(testutil.VoterPhone),
		GatewayPhoneNumber: testutil.GatewayPull,
		NeedsAttention:     true,
	}))
	h := newAdminHandler(log)

	w := httptest.NewRecorder()
	h.Stats(w, testutil.MakeRequest("GET", "/admin/stats", nil, adminKey(ScopeStats)))

	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.StatsResponse
	testutil.AssertJSON(t, w, &resp)
	require.Len(t, resp.Unclaimed, 1)
	assert.Equal(t, "C0OHIO", resp.Unclaimed[0].ChannelID)
	require.Len(t, resp.NeedsAttentionChannels, 1)
	assert.Equal(t, 1, resp.NeedsAttentionChannels[0].Count)
	assert.NotNil(t, resp.NeedsAttentionVolunteer)
}

func TestStats_RequiresKey(t *testing.T) {
	h := newAdminHandler(testutil.NewMemoryLog())

	w := httptest.NewRecorder()
	h.Stats(w, testutil.MakeRequest("GET", "/admin/stats", nil, adminKey(ScopePush)))

	testutil.AssertStatus(t, w, http.StatusUnauthorized)
}
