// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package balancer

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/models"
)

type fakeWeights struct {
	rows  map[string][]models.ChannelWeight
	reads int
}

func newFakeWeights() *fakeWeights {
	return &fakeWeights{rows: make(map[string][]models.ChannelWeight)}
}

func (f *fakeWeights) ChannelWeights(_ context.Context, region string, ct models.ChannelType) ([]models.ChannelWeight, error) {
	f.reads++
	return f.rows[region+"/"+string(ct)], nil
}

func (f *fakeWeights) ReplaceChannelWeights(_ context.Context, region string, ct models.ChannelType, w []models.ChannelWeight) error {
	f.rows[region+"/"+string(ct)] = w
	return nil
}

type fixedSource int

func (f fixedSource) IntN(int) int { return int(f) }

func row(ep models.EntryPoint, name string, weight int) models.ChannelWeight {
	return models.ChannelWeight{EntryPoint: ep, ChannelName: name, Weight: weight}
}

func TestPick(t *testing.T) {
	rows := []models.ChannelWeight{
		row(models.EntryPointPull, "a", 1),
		row(models.EntryPointPull, "zero", 0),
		row(models.EntryPointPull, "b", 3),
	}

	tests := []struct {
		name string
		draw int
		want string
	}{
		{"first bucket", 0, "a"},
		{"second bucket start", 1, "b"},
		{"second bucket end", 3, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pick(rows, fixedSource(tt.draw))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Pick([]models.ChannelWeight{row(models.EntryPointPull, "zero", 0)}, fixedSource(0))
	assert.False(t, ok, "zero total weight selects nothing")

	_, ok = Pick(nil, fixedSource(0))
	assert.False(t, ok)
}

func TestPick_OversizedRows(t *testing.T) {
	// rows loaded straight from the table may exceed the cap
	rows := []models.ChannelWeight{
		row(models.EntryPointPull, "a", math.MaxInt),
		row(models.EntryPointPull, "b", math.MaxInt),
		row(models.EntryPointPull, "c", 1),
	}

	got, ok := Pick(rows, fixedSource(MaxWeight))
	require.True(t, ok)
	assert.Equal(t, "b", got)

	got, ok = Pick(rows, fixedSource(2*MaxWeight))
	require.True(t, ok)
	assert.Equal(t, "c", got)

	ctx := context.Background()
	weights := newFakeWeights()
	weights.rows["Ohio/NORMAL"] = rows
	b := New(cache.NewMemoryStore(), weights, nil)
	assert.NotPanics(t, func() {
		_, ok, err := b.SelectChannel(ctx, models.EntryPointPull, "Ohio", false)
		assert.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPick_Distribution(t *testing.T) {
	rows := []models.ChannelWeight{
		row(models.EntryPointPull, "a", 1),
		row(models.EntryPointPull, "b", 3),
		row(models.EntryPointPull, "never", 0),
	}
	rng := rand.New(rand.NewPCG(1, 2))

	const draws = 20000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		name, ok := Pick(rows, rng)
		require.True(t, ok)
		counts[name]++
	}

	assert.Zero(t, counts["never"])
	assert.InDelta(t, 0.25, float64(counts["a"])/draws, 0.02)
	assert.InDelta(t, 0.75, float64(counts["b"])/draws, 0.02)
}

func TestSelectChannel(t *testing.T) {
	ctx := context.Background()
	weights := newFakeWeights()
	weights.rows["Florida/NORMAL"] = []models.ChannelWeight{
		row(models.EntryPointPull, "florida-0", 1),
		row(models.EntryPointPush, "florida-push", 0),
	}
	weights.rows["*/NORMAL"] = []models.ChannelWeight{
		row(models.EntryPointPush, "national-push", 1),
	}
	weights.rows["Florida/DEMO"] = []models.ChannelWeight{
		row(models.EntryPointPull, "demo-florida-0", 1),
	}
	b := New(cache.NewMemoryStore(), weights, fixedSource(0))

	tests := []struct {
		name       string
		entryPoint models.EntryPoint
		region     string
		isDemo     bool
		want       string
		wantOK     bool
	}{
		{"region match", models.EntryPointPull, "Florida", false, "florida-0", true},
		{"zero weight falls back to wildcard", models.EntryPointPush, "Florida", false, "national-push", true},
		{"unknown region uses wildcard", models.EntryPointPush, "Ohio", false, "national-push", true},
		{"demo partition", models.EntryPointPull, "Florida", true, "demo-florida-0", true},
		{"nothing anywhere", models.EntryPointPull, "Ohio", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := b.SelectChannel(ctx, tt.entryPoint, tt.region, tt.isDemo)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectChannel_UsesCache(t *testing.T) {
	ctx := context.Background()
	weights := newFakeWeights()
	weights.rows["Ohio/NORMAL"] = []models.ChannelWeight{row(models.EntryPointPull, "ohio-0", 2)}
	b := New(cache.NewMemoryStore(), weights, fixedSource(1))

	for i := 0; i < 3; i++ {
		got, ok, err := b.SelectChannel(ctx, models.EntryPointPull, "Ohio", false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "ohio-0", got)
	}
	assert.Equal(t, 1, weights.reads, "durable table is read once, then cached")
}

func TestSelectChannel_CachesEmptyPartition(t *testing.T) {
	ctx := context.Background()
	weights := newFakeWeights()
	b := New(cache.NewMemoryStore(), weights, fixedSource(0))

	for i := 0; i < 3; i++ {
		_, ok, err := b.SelectChannel(ctx, models.EntryPointPull, "Ohio", false)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, weights.reads, "Ohio and the wildcard are each read once")

	rows, err := b.Weights(ctx, "Ohio", models.ChannelTypeNormal)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCheckChannelWeights(t *testing.T) {
	weights := newFakeWeights()
	store := cache.NewMemoryStore()
	b := New(store, weights, fixedSource(0))

	warnings, err := b.CheckChannelWeights("Ohio", models.ChannelTypeNormal, []models.ChannelWeight{
		row(models.EntryPointPull, "ohio-0", 0),
		row(models.EntryPointPush, "ohio-push", 1),
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "PULL")
	assert.Empty(t, weights.rows, "nothing is written")

	fields, err := store.GetHash(context.Background(), cacheKey("Ohio", models.ChannelTypeNormal))
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = b.CheckChannelWeights("Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row(models.EntryPointPull, "a", MaxWeight+1)})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestSetChannelWeights(t *testing.T) {
	ctx := context.Background()
	weights := newFakeWeights()
	store := cache.NewMemoryStore()
	b := New(store, weights, fixedSource(0))

	warnings, err := b.SetChannelWeights(ctx, "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{
		row(models.EntryPointPull, "ohio-1", 1),
		row(models.EntryPointPull, "ohio-0", 2),
		row(models.EntryPointPush, "ohio-push", 0),
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "PUSH")
	assert.Len(t, weights.rows["Ohio/NORMAL"], 3)

	got, ok, err := b.SelectChannel(ctx, models.EntryPointPull, "Ohio", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ohio-0", got, "rows are ordered by name, so the first draw lands on ohio-0")
	assert.Zero(t, weights.reads, "selection reads the cache written by SetChannelWeights")

	rows, err := b.Weights(ctx, "Ohio", models.ChannelTypeNormal)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSetChannelWeights_Invalid(t *testing.T) {
	b := New(cache.NewMemoryStore(), newFakeWeights(), nil)

	tests := []struct {
		name        string
		region      string
		channelType models.ChannelType
		rows        []models.ChannelWeight
	}{
		{"negative weight", "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row(models.EntryPointPull, "a", -1)}},
		{"weight above cap", "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row(models.EntryPointPull, "a", math.MaxInt), row(models.EntryPointPull, "b", 1)}},
		{"unknown entry point", "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row("SIDEWAYS", "a", 1)}},
		{"empty name", "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row(models.EntryPointPull, " ", 1)}},
		{"duplicate", "Ohio", models.ChannelTypeNormal, []models.ChannelWeight{row(models.EntryPointPull, "a", 1), row(models.EntryPointPull, "a", 2)}},
		{"missing region", "", models.ChannelTypeNormal, nil},
		{"bad channel type", "Ohio", "VIP", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.SetChannelWeights(context.Background(), tt.region, tt.channelType, tt.rows)
			assert.True(t, errors.Is(err, ErrInvalidWeights), "got %v", err)
		})
	}
}

func TestSelectChannel_CorruptCacheReloads(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.SetHash(ctx, cacheKey("Ohio", models.ChannelTypeNormal), map[string]string{"PULL:ohio-0": "lots"}))
	weights := newFakeWeights()
	weights.rows["Ohio/NORMAL"] = []models.ChannelWeight{row(models.EntryPointPull, "ohio-0", 1)}
	b := New(store, weights, fixedSource(0))

	got, ok, err := b.SelectChannel(ctx, models.EntryPointPull, "Ohio", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ohio-0", got)
	assert.Equal(t, 1, weights.reads)
}
