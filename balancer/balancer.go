// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/models"
)

// Wildcard is the region used when a voter's region has no channels.
const Wildcard = "*"

// MaxWeight caps a single row so a partition total cannot overflow.
const MaxWeight = 1_000_000

// emptyField marks a cached partition with no rows.
const emptyField = "-"

var ErrInvalidWeights = errors.New("invalid channel weights")

// WeightStore is the durable home of the weight table.
type WeightStore interface {
	ChannelWeights(ctx context.Context, region string, channelType models.ChannelType) ([]models.ChannelWeight, error)
	ReplaceChannelWeights(ctx context.Context, region string, channelType models.ChannelType, weights []models.ChannelWeight) error
}

// Source is the random source for selection; *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type Balancer struct {
	store   cache.Store
	weights WeightStore

	mu  sync.Mutex
	rng Source
}

// New builds a Balancer. A nil rng uses the global generator.
func New(store cache.Store, weights WeightStore, rng Source) *Balancer {
	return &Balancer{store: store, weights: weights, rng: rng}
}

func cacheKey(region string, channelType models.ChannelType) string {
	return "channelWeights:" + region + ":" + string(channelType)
}

func ChannelTypeFor(isDemo bool) models.ChannelType {
	if isDemo {
		return models.ChannelTypeDemo
	}
	return models.ChannelTypeNormal
}

// Pick draws a channel with probability proportional to its weight.
// It reports false when no row has positive weight.
func Pick(rows []models.ChannelWeight, rng Source) (string, bool) {
	total := 0
	for _, r := range rows {
		total += drawWeight(r)
	}
	if total <= 0 {
		return "", false
	}

	n := rng.IntN(total)
	for _, r := range rows {
		w := drawWeight(r)
		if w == 0 {
			continue
		}
		if n < w {
			return r.ChannelName, true
		}
		n -= w
	}
	// unreachable while IntN honors its contract
	return "", false
}

// drawWeight clamps rows written around validation into [0, MaxWeight].
func drawWeight(r models.ChannelWeight) int {
	switch {
	case r.Weight <= 0:
		return 0
	case r.Weight > MaxWeight:
		return MaxWeight
	}
	return r.Weight
}

func (b *Balancer) intN(n int) int {
	if b.rng == nil {
		return rand.IntN(n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

// SelectChannel picks a destination channel name for a voter. It tries the
// voter's region first and the wildcard partition second. ok is false when
// neither has a positive weight for the entry point; callers fall back to a
// fixed channel.
func (b *Balancer) SelectChannel(ctx context.Context, entryPoint models.EntryPoint, regionName string, isDemo bool) (string, bool, error) {
	channelType := ChannelTypeFor(isDemo)
	regions := []string{Wildcard}
	if regionName != "" && regionName != Wildcard {
		regions = []string{regionName, Wildcard}
	}

	for _, r := range regions {
		rows, err := b.partition(ctx, r, channelType)
		if err != nil {
			return "", false, err
		}
		var eligible []models.ChannelWeight
		for _, row := range rows {
			if row.EntryPoint == entryPoint {
				eligible = append(eligible, row)
			}
		}
		if name, ok := Pick(eligible, sourceFunc(b.intN)); ok {
			slog.Debug("channel selected", "region", r, "entry_point", entryPoint, "channel", name)
			return name, true, nil
		}
	}
	return "", false, nil
}

type sourceFunc func(int) int

func (f sourceFunc) IntN(n int) int { return f(n) }

// partition reads the weight rows from the cache, repopulating it from
// the durable table on a miss.
func (b *Balancer) partition(ctx context.Context, regionName string, channelType models.ChannelType) ([]models.ChannelWeight, error) {
	key := cacheKey(regionName, channelType)
	fields, err := b.store.GetHash(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read weights %s: %w", key, err)
	}
	if len(fields) > 0 {
		rows, err := decodeWeights(regionName, channelType, fields)
		if err == nil {
			return rows, nil
		}
		slog.Warn("discarding corrupt cached weights", "key", key, "error", err)
	}

	rows, err := b.weights.ChannelWeights(ctx, regionName, channelType)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	if err := b.store.ReplaceHash(ctx, key, encodeWeights(rows)); err != nil {
		// the durable rows are still usable
		slog.Warn("failed to cache weights", "key", key, "error", err)
	}
	return rows, nil
}

func encodeWeights(rows []models.ChannelWeight) map[string]string {
	if len(rows) == 0 {
		// an empty hash would delete the key and force a reload per draw
		return map[string]string{emptyField: "0"}
	}
	fields := make(map[string]string, len(rows))
	for _, r := range rows {
		fields[string(r.EntryPoint)+":"+r.ChannelName] = strconv.Itoa(r.Weight)
	}
	return fields
}

func decodeWeights(regionName string, channelType models.ChannelType, fields map[string]string) ([]models.ChannelWeight, error) {
	rows := make([]models.ChannelWeight, 0, len(fields))
	for field, v := range fields {
		if field == emptyField {
			continue
		}
		ep, name, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("malformed weight field %q", field)
		}
		w, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("weight for %q: %w", field, err)
		}
		rows = append(rows, models.ChannelWeight{
			Region:      regionName,
			ChannelType: channelType,
			EntryPoint:  models.EntryPoint(ep),
			ChannelName: name,
			Weight:      w,
		})
	}
	// map order is random; keep draws reproducible for a seeded source
	sortWeights(rows)
	return rows, nil
}

func sortWeights(rows []models.ChannelWeight) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntryPoint != rows[j].EntryPoint {
			return rows[i].EntryPoint < rows[j].EntryPoint
		}
		return rows[i].ChannelName < rows[j].ChannelName
	})
}

// Weights returns the rows of one partition.
func (b *Balancer) Weights(ctx context.Context, regionName string, channelType models.ChannelType) ([]models.ChannelWeight, error) {
	return b.partition(ctx, regionName, channelType)
}

// CheckChannelWeights validates a replacement partition and returns its
// warnings without writing anything.
func (b *Balancer) CheckChannelWeights(regionName string, channelType models.ChannelType, weights []models.ChannelWeight) ([]string, error) {
	if err := validate(regionName, channelType, weights); err != nil {
		return nil, err
	}
	return zeroTotalWarnings(regionName, channelType, weights), nil
}

// SetChannelWeights replaces a (region, type) partition in the durable
// table and the cache. Warnings flag entry points left without any
// positive weight; they do not block the write.
func (b *Balancer) SetChannelWeights(ctx context.Context, regionName string, channelType models.ChannelType, weights []models.ChannelWeight) ([]string, error) {
	warnings, err := b.CheckChannelWeights(regionName, channelType, weights)
	if err != nil {
		return nil, err
	}

	rows := make([]models.ChannelWeight, len(weights))
	for i, w := range weights {
		w.Region = regionName
		w.ChannelType = channelType
		rows[i] = w
	}
	sortWeights(rows)

	if err := b.weights.ReplaceChannelWeights(ctx, regionName, channelType, rows); err != nil {
		return nil, fmt.Errorf("store weights: %w", err)
	}
	if err := b.store.ReplaceHash(ctx, cacheKey(regionName, channelType), encodeWeights(rows)); err != nil {
		return nil, fmt.Errorf("cache weights: %w", err)
	}

	slog.Info("channel weights updated", "region", regionName, "channel_type", channelType,
		"rows", len(rows), "warnings", len(warnings))
	return warnings, nil
}

func zeroTotalWarnings(regionName string, channelType models.ChannelType, rows []models.ChannelWeight) []string {
	var warnings []string
	for _, ep := range []models.EntryPoint{models.EntryPointPull, models.EntryPointPush} {
		total := 0
		for _, r := range rows {
			if r.EntryPoint == ep {
				total += r.Weight
			}
		}
		if total == 0 {
			warnings = append(warnings, fmt.Sprintf("%s %s has no positive weight for %s voters; they will use the fallback channel",
				regionName, channelType, ep))
		}
	}
	return warnings
}

func validate(regionName string, channelType models.ChannelType, weights []models.ChannelWeight) error {
	if strings.TrimSpace(regionName) == "" {
		return fmt.Errorf("%w: region is required", ErrInvalidWeights)
	}
	if channelType != models.ChannelTypeNormal && channelType != models.ChannelTypeDemo {
		return fmt.Errorf("%w: unknown channel type %q", ErrInvalidWeights, channelType)
	}
	seen := make(map[string]bool, len(weights))
	for _, w := range weights {
		if !w.EntryPoint.Valid() {
			return fmt.Errorf("%w: unknown entry point %q", ErrInvalidWeights, w.EntryPoint)
		}
		if strings.TrimSpace(w.ChannelName) == "" || strings.Contains(w.ChannelName, ":") {
			return fmt.Errorf("%w: invalid channel name %q", ErrInvalidWeights, w.ChannelName)
		}
		if w.Weight < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidWeights, w.ChannelName)
		}
		if w.Weight > MaxWeight {
			return fmt.Errorf("%w: weight for %s exceeds %d", ErrInvalidWeights, w.ChannelName, MaxWeight)
		}
		k := string(w.EntryPoint) + ":" + w.ChannelName
		if seen[k] {
			return fmt.Errorf("%w: duplicate row %s", ErrInvalidWeights, k)
		}
		seen[k] = true
	}
	return nil
}
