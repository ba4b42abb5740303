// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/models"
)

type storedMessage struct {
	entry     models.MessageLogEntry
	createdAt time.Time
	archived  bool
}

type storedStatus struct {
	update    models.VoterStatusUpdate
	createdAt time.Time
	archived  bool
}

type storedClaim struct {
	claim     models.VolunteerClaim
	createdAt time.Time
	archived  bool
}

type storedThread struct {
	record   models.ThreadRecord
	archived bool
}

// MemoryLog is an in-memory db.Log with the same semantics as db.Store.
type MemoryLog struct {
	mu       sync.Mutex
	Now      func() time.Time
	messages []*storedMessage
	threads  []*storedThread
	statuses []storedStatus
	claims   []storedClaim
	Commands []models.CommandRecord
	weights  []models.ChannelWeight
}

var _ db.Log = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{Now: time.Now}
}

func (l *MemoryLog) InsertMessage(_ context.Context, e *models.MessageLogEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.IdempotencyKey != "" {
		for _, m := range l.messages {
			if m.entry.IdempotencyKey == e.IdempotencyKey {
				return false, nil
			}
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.messages = append(l.messages, &storedMessage{entry: *e, createdAt: l.Now()})
	return true, nil
}

func (l *MemoryLog) UpdateMessageDelivery(_ context.Context, id string, d db.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.entry.ID != id {
			continue
		}
		set := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		set(&m.entry.SlackChannel, d.SlackChannel)
		set(&m.entry.SlackParentMessageTs, d.SlackParentMessageTs)
		set(&m.entry.SlackMessageTs, d.SlackMessageTs)
		set(&m.entry.TwilioMessageSid, d.TwilioMessageSid)
		set(&m.entry.SlackError, d.SlackError)
		set(&m.entry.TwilioError, d.TwilioError)
		if d.SlackSendAt != nil {
			m.entry.SlackSendAt = d.SlackSendAt
		}
		if d.TwilioSendAt != nil {
			m.entry.TwilioSendAt = d.TwilioSendAt
		}
		m.entry.SuccessfullySent = d.SuccessfullySent
	}
	return nil
}

func (l *MemoryLog) UpdateDeliveryStatus(_ context.Context, sid, status string) (string, string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if sid != "" && m.entry.TwilioMessageSid == sid {
			now := l.Now()
			m.entry.DeliveryStatus = status
			m.entry.DeliveryStatusAt = &now
			return m.entry.SlackChannel, m.entry.SlackParentMessageTs, true, nil
		}
	}
	return "", "", false, nil
}

func (l *MemoryLog) MessageHistory(_ context.Context, voterID, gatewayPhone string, since time.Time) ([]models.HistoricalMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.HistoricalMessage
	for _, m := range l.messages {
		e := m.entry
		if e.VoterID != voterID || e.GatewayPhoneNumber != gatewayPhone || m.archived || m.createdAt.Before(since) {
			continue
		}
		if !e.SuccessfullySent {
			continue
		}
		out = append(out, models.HistoricalMessage{
			Direction:         e.Direction,
			Automated:         e.Automated,
			Message:           e.Message,
			SlackUserName:     e.SlackUserName,
			TwilioAttachments: e.TwilioAttachments,
			Timestamp:         m.createdAt,
		})
	}
	return out, nil
}

func (l *MemoryLog) OldestSessionMessage(_ context.Context, voterID, gatewayPhone string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lastEnd time.Time
	for _, t := range l.threads {
		r := t.record
		if r.VoterID == voterID && r.GatewayPhoneNumber == gatewayPhone && r.SessionEndAt != nil && r.SessionEndAt.After(lastEnd) {
			lastEnd = *r.SessionEndAt
		}
	}
	for _, m := range l.messages {
		if m.entry.VoterID == voterID && m.entry.GatewayPhoneNumber == gatewayPhone && !m.archived && m.createdAt.After(lastEnd) {
			return m.createdAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (l *MemoryLog) thread(channelID, threadTs string) *storedThread {
	for _, t := range l.threads {
		if t.record.ChannelID == channelID && t.record.ThreadTs == threadTs {
			return t
		}
	}
	return nil
}

func (l *MemoryLog) InsertThread(_ context.Context, t models.ThreadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.thread(t.ChannelID, t.ThreadTs) != nil {
		return nil
	}
	t.Active = true
	t.UpdatedAt = l.Now()
	l.threads = append(l.threads, &storedThread{record: t})
	return nil
}

func (l *MemoryLog) ThreadNeedsAttention(_ context.Context, channelID, threadTs string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.thread(channelID, threadTs); t != nil {
		return t.record.NeedsAttention, nil
	}
	return false, nil
}

func (l *MemoryLog) SetThreadNeedsAttention(_ context.Context, channelID, threadTs string, needsAttention bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.thread(channelID, threadTs); t != nil {
		t.record.NeedsAttention = needsAttention
		t.record.UpdatedAt = l.Now()
	}
	return nil
}

func (l *MemoryLog) SetThreadInactive(_ context.Context, channelID, threadTs string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.thread(channelID, threadTs); t != nil {
		t.record.Active = false
		t.record.NeedsAttention = false
		t.record.UpdatedAt = l.Now()
	}
	return nil
}

func (l *MemoryLog) SetThreadHistoryTs(_ context.Context, channelID, threadTs, historyTs string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.thread(channelID, threadTs); t != nil {
		t.record.HistoryTs = historyTs
	}
	return nil
}

func (l *MemoryLog) SetSessionEnd(_ context.Context, voterID, gatewayPhone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Now()
	for _, t := range l.threads {
		r := &t.record
		if r.VoterID == voterID && r.GatewayPhoneNumber == gatewayPhone && r.SessionEndAt == nil {
			end := now
			r.SessionEndAt = &end
			r.Active = false
			r.NeedsAttention = false
			r.UpdatedAt = now
		}
	}
	return nil
}

func (l *MemoryLog) PastSessions(_ context.Context, voterID, gatewayPhone string) ([]models.PastSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ended []models.ThreadRecord
	for _, t := range l.threads {
		r := t.record
		if r.VoterID == voterID && r.GatewayPhoneNumber == gatewayPhone && r.SessionEndAt != nil && !t.archived {
			ended = append(ended, r)
		}
	}
	sort.SliceStable(ended, func(i, j int) bool {
		if !ended[i].SessionEndAt.Equal(*ended[j].SessionEndAt) {
			return ended[i].SessionEndAt.Before(*ended[j].SessionEndAt)
		}
		return ended[i].UpdatedAt.Before(ended[j].UpdatedAt)
	})
	var out []models.PastSession
	for _, r := range ended {
		p := models.PastSession{
			ChannelID:         r.ChannelID,
			ThreadTs:          r.ThreadTs,
			HistoryTs:         r.HistoryTs,
			SessionStartEpoch: r.SessionStartEpoch,
			SessionEndAt:      *r.SessionEndAt,
			UpdatedAt:         r.UpdatedAt,
		}
		if n := len(out); n > 0 && out[n-1].SessionEndAt.Equal(p.SessionEndAt) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *MemoryLog) LogVoterStatus(_ context.Context, u models.VoterStatusUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, storedStatus{update: u, createdAt: l.Now()})
	return nil
}

func (l *MemoryLog) latestStatus(voterID, gatewayPhone string, skipBlocking bool) models.VoterStatus {
	for i := len(l.statuses) - 1; i >= 0; i-- {
		s := l.statuses[i]
		if s.archived || s.update.VoterID != voterID || s.update.GatewayPhoneNumber != gatewayPhone {
			continue
		}
		if skipBlocking && s.update.Status.Blocking() {
			continue
		}
		return s.update.Status
	}
	return models.VoterStatusUnknown
}

func (l *MemoryLog) LatestVoterStatus(_ context.Context, voterID, gatewayPhone string) (models.VoterStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestStatus(voterID, gatewayPhone, false), nil
}

func (l *MemoryLog) LatestNonBlockingStatus(_ context.Context, voterID, gatewayPhone string) (models.VoterStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestStatus(voterID, gatewayPhone, true), nil
}

func (l *MemoryLog) LogVolunteerClaim(_ context.Context, c models.VolunteerClaim) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claims = append(l.claims, storedClaim{claim: c, createdAt: l.Now()})
	return nil
}

func (l *MemoryLog) currentVolunteer(voterID, gatewayPhone string) string {
	for i := len(l.claims) - 1; i >= 0; i-- {
		c := l.claims[i]
		if !c.archived && c.claim.VoterID == voterID && c.claim.GatewayPhoneNumber == gatewayPhone {
			return c.claim.VolunteerID
		}
	}
	return ""
}

func (l *MemoryLog) CurrentVolunteer(_ context.Context, voterID, gatewayPhone string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentVolunteer(voterID, gatewayPhone), nil
}

func (l *MemoryLog) LogCommand(_ context.Context, c models.CommandRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Commands = append(l.Commands, c)
	return nil
}

func (l *MemoryLog) ArchiveDemoVoter(_ context.Context, voterID, gatewayPhone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.entry.VoterID == voterID && m.entry.GatewayPhoneNumber == gatewayPhone && m.entry.IsDemo {
			m.archived = true
		}
	}
	for _, t := range l.threads {
		if t.record.VoterID == voterID && t.record.GatewayPhoneNumber == gatewayPhone && t.record.IsDemo {
			t.archived = true
		}
	}
	for i := range l.statuses {
		u := l.statuses[i].update
		if u.VoterID == voterID && u.GatewayPhoneNumber == gatewayPhone && u.IsDemo {
			l.statuses[i].archived = true
		}
	}
	for i := range l.claims {
		c := l.claims[i].claim
		if c.VoterID == voterID && c.GatewayPhoneNumber == gatewayPhone && c.IsDemo {
			l.claims[i].archived = true
		}
	}
	return nil
}

func (l *MemoryLog) UnclaimedVoters(_ context.Context, channelID string) ([]models.UnclaimedVoter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.UnclaimedVoter
	for _, t := range l.threads {
		r := t.record
		if t.archived || !r.Active || (channelID != "" && r.ChannelID != channelID) {
			continue
		}
		if l.currentVolunteer(r.VoterID, r.GatewayPhoneNumber) != "" {
			continue
		}
		out = append(out, models.UnclaimedVoter{
			VoterID:        r.VoterID,
			ChannelID:      r.ChannelID,
			ThreadTs:       r.ThreadTs,
			LastUpdate:     r.UpdatedAt,
			NeedsAttention: r.NeedsAttention,
		})
	}
	return out, nil
}

func (l *MemoryLog) NeedsAttentionByChannel(context.Context) ([]models.ChannelStat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := map[string]*models.ChannelStat{}
	var order []string
	for _, t := range l.threads {
		r := t.record
		if t.archived || !r.Active || !r.NeedsAttention {
			continue
		}
		s, ok := stats[r.ChannelID]
		if !ok {
			s = &models.ChannelStat{ChannelID: r.ChannelID, OldestNeedingUpdate: r.UpdatedAt}
			stats[r.ChannelID] = s
			order = append(order, r.ChannelID)
		}
		s.Count++
		if r.UpdatedAt.Before(s.OldestNeedingUpdate) {
			s.OldestNeedingUpdate = r.UpdatedAt
		}
	}
	out := make([]models.ChannelStat, 0, len(order))
	for _, id := range order {
		out = append(out, *stats[id])
	}
	return out, nil
}

func (l *MemoryLog) NeedsAttentionByVolunteer(context.Context) ([]models.VolunteerStat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := map[string]*models.VolunteerStat{}
	var order []string
	for _, t := range l.threads {
		r := t.record
		if t.archived || !r.Active || !r.NeedsAttention {
			continue
		}
		v := l.currentVolunteer(r.VoterID, r.GatewayPhoneNumber)
		if v == "" {
			continue
		}
		s, ok := stats[v]
		if !ok {
			s = &models.VolunteerStat{VolunteerID: v, Oldest: r.UpdatedAt}
			stats[v] = s
			order = append(order, v)
		}
		s.Count++
		if r.UpdatedAt.Before(s.Oldest) {
			s.Oldest = r.UpdatedAt
		}
	}
	out := make([]models.VolunteerStat, 0, len(order))
	for _, v := range order {
		out = append(out, *stats[v])
	}
	return out, nil
}

func (l *MemoryLog) ChannelWeights(_ context.Context, region string, channelType models.ChannelType) ([]models.ChannelWeight, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ChannelWeight
	for _, w := range l.weights {
		if w.Region == region && w.ChannelType == channelType {
			out = append(out, w)
		}
	}
	return out, nil
}

func (l *MemoryLog) ReplaceChannelWeights(_ context.Context, region string, channelType models.ChannelType, weights []models.ChannelWeight) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.weights[:0]
	for _, w := range l.weights {
		if w.Region != region || w.ChannelType != channelType {
			kept = append(kept, w)
		}
	}
	for _, w := range weights {
		w.Region = region
		w.ChannelType = channelType
		kept = append(kept, w)
	}
	l.weights = kept
	return nil
}

// Inspection helpers

// Messages returns a copy of every logged message.
func (l *MemoryLog) Messages() []models.MessageLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.MessageLogEntry, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.entry
	}
	return out
}

// Threads returns a copy of every thread record.
func (l *MemoryLog) Threads() []models.ThreadRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ThreadRecord, len(l.threads))
	for i, t := range l.threads {
		out[i] = t.record
	}
	return out
}

// Thread returns one thread record.
func (l *MemoryLog) Thread(channelID, threadTs string) (models.ThreadRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := l.thread(channelID, threadTs); t != nil {
		return t.record, true
	}
	return models.ThreadRecord{}, false
}

// Statuses returns every logged status for a voter, oldest first.
func (l *MemoryLog) Statuses(voterID string) []models.VoterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.VoterStatus
	for _, s := range l.statuses {
		if s.update.VoterID == voterID {
			out = append(out, s.update.Status)
		}
	}
	return out
}
