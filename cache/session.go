// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danielhkuo/helpline-router/models"
)

// Well-known keys
const (
	ChannelDirectoryKey = "slackPodChannelIds"
	OutboundBlockKey    = "slackBlockedUserPhoneNumbers"
	InboundBlockKey     = "twilioBlockedUserPhoneNumbers"
)

// Session hash fields. Thread entries are stored under the raw channel id.
const (
	fieldVoterID           = "userId"
	fieldVoterPhone        = "userPhoneNumber"
	fieldGatewayPhone      = "twilioPhoneNumber"
	fieldEntryPoint        = "entryPoint"
	fieldIsDemo            = "isDemo"
	fieldConfirmed         = "confirmedDisclaimer"
	fieldStateName         = "stateName"
	fieldAttempts          = "numStateSelectionAttempts"
	fieldVolunteerEngaged  = "volunteerEngaged"
	fieldActiveChannelID   = "activeChannelId"
	fieldActiveChannelName = "activeChannelName"
	fieldLastVoterMessage  = "lastVoterMessageSecsFromEpoch"
	FieldSessionStart      = "sessionStartEpoch"
	fieldReturningVoter    = "returningVoter"
	fieldPanelMessage      = "panelMessage"

	fieldThreadVoterPhone   = "userPhoneNumber"
	fieldThreadGatewayPhone = "twilioPhoneNumber"
)

func SessionKey(voterID, gatewayPhoneNumber string) string {
	return voterID + ":" + gatewayPhoneNumber
}

func ThreadKey(channelID, threadTs string) string {
	return channelID + ":" + threadTs
}

// EncodeSession flattens a session into hash fields. Zero-valued optional
// fields are omitted so that ReplaceHash removes them.
func EncodeSession(s *models.SessionState) map[string]string {
	f := map[string]string{
		fieldVoterID:          s.VoterID,
		fieldVoterPhone:       s.VoterPhoneNumber,
		fieldGatewayPhone:     s.GatewayPhoneNumber,
		fieldIsDemo:           strconv.FormatBool(s.IsDemo),
		fieldConfirmed:        strconv.FormatBool(s.ConfirmedDisclaimer),
		fieldAttempts:         strconv.Itoa(s.NumRegionSelectionAttempts),
		fieldVolunteerEngaged: strconv.FormatBool(s.VolunteerEngaged),
		fieldReturningVoter:   strconv.FormatBool(s.ReturningVoter),
	}
	optional := map[string]string{
		fieldEntryPoint:        string(s.EntryPoint),
		fieldStateName:         s.StateName,
		fieldActiveChannelID:   s.ActiveChannelID,
		fieldActiveChannelName: s.ActiveChannelName,
		fieldPanelMessage:      s.PanelMessage,
	}
	for k, v := range optional {
		if v != "" {
			f[k] = v
		}
	}
	if s.LastVoterMessageEpoch != 0 {
		f[fieldLastVoterMessage] = strconv.FormatInt(s.LastVoterMessageEpoch, 10)
	}
	if s.SessionStartEpoch != 0 {
		f[FieldSessionStart] = strconv.FormatInt(s.SessionStartEpoch, 10)
	}
	for channelID, ts := range s.Threads {
		f[channelID] = ts
	}
	return f
}

// DecodeSession rebuilds a session from hash fields, including hashes
// written before the typed schema existed.
func DecodeSession(f map[string]string) (*models.SessionState, error) {
	s := &models.SessionState{Threads: make(map[string]string)}
	var err error
	for k, v := range f {
		switch k {
		case fieldVoterID:
			s.VoterID = v
		case fieldVoterPhone:
			s.VoterPhoneNumber = v
		case fieldGatewayPhone:
			s.GatewayPhoneNumber = v
		case fieldEntryPoint:
			s.EntryPoint = models.EntryPoint(v)
		case fieldIsDemo:
			s.IsDemo, err = parseBool(v)
		case fieldConfirmed:
			s.ConfirmedDisclaimer, err = parseBool(v)
		case fieldStateName:
			s.StateName = v
		case fieldAttempts:
			s.NumRegionSelectionAttempts, err = strconv.Atoi(v)
		case fieldVolunteerEngaged:
			s.VolunteerEngaged, err = parseBool(v)
		case fieldActiveChannelID:
			s.ActiveChannelID = v
		case fieldActiveChannelName:
			s.ActiveChannelName = v
		case fieldLastVoterMessage:
			s.LastVoterMessageEpoch, err = strconv.ParseInt(v, 10, 64)
		case FieldSessionStart:
			s.SessionStartEpoch, err = strconv.ParseInt(v, 10, 64)
		case fieldReturningVoter:
			s.ReturningVoter, err = parseBool(v)
		case fieldPanelMessage:
			s.PanelMessage = v
		default:
			if isChannelID(k) {
				s.Threads[k] = v
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode session field %s: %w", k, err)
		}
	}
	return s, nil
}

// Legacy hashes stored "true"/"false" but also "" for unset booleans.
func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// Slack channel ids are upper-case alphanumerics (C0123ABC); the lobby
// placeholder uses underscores.
func isChannelID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

// Sessions gives typed access to the helpline keys in a Store.
type Sessions struct {
	store Store
}

func NewSessions(store Store) *Sessions {
	return &Sessions{store: store}
}

// Store exposes the underlying store for callers that need raw access.
func (s *Sessions) Store() Store {
	return s.store
}

// Get returns nil when the voter has no session with the gateway number.
func (s *Sessions) Get(ctx context.Context, voterID, gatewayPhoneNumber string) (*models.SessionState, error) {
	fields, err := s.store.GetHash(ctx, SessionKey(voterID, gatewayPhoneNumber))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return DecodeSession(fields)
}

func (s *Sessions) Save(ctx context.Context, session *models.SessionState) error {
	return s.store.ReplaceHash(ctx, SessionKey(session.VoterID, session.GatewayPhoneNumber), EncodeSession(session))
}

func (s *Sessions) Delete(ctx context.Context, voterID, gatewayPhoneNumber string) error {
	_, err := s.store.DeleteKeys(ctx, SessionKey(voterID, gatewayPhoneNumber))
	return err
}

// ClearSessionStart removes the start marker, making the session stale.
func (s *Sessions) ClearSessionStart(ctx context.Context, voterID, gatewayPhoneNumber string) error {
	return s.store.DeleteField(ctx, SessionKey(voterID, gatewayPhoneNumber), FieldSessionStart)
}

// ThreadOwner resolves a chat thread to its voter.
func (s *Sessions) ThreadOwner(ctx context.Context, channelID, threadTs string) (models.ThreadRef, bool, error) {
	fields, err := s.store.GetHash(ctx, ThreadKey(channelID, threadTs))
	if err != nil {
		return models.ThreadRef{}, false, err
	}
	ref := models.ThreadRef{
		VoterPhoneNumber:   fields[fieldThreadVoterPhone],
		GatewayPhoneNumber: fields[fieldThreadGatewayPhone],
	}
	if ref.VoterPhoneNumber == "" || ref.GatewayPhoneNumber == "" {
		return models.ThreadRef{}, false, nil
	}
	return ref, true, nil
}

func (s *Sessions) SetThreadOwner(ctx context.Context, channelID, threadTs string, ref models.ThreadRef) error {
	return s.store.SetHash(ctx, ThreadKey(channelID, threadTs), map[string]string{
		fieldThreadVoterPhone:   ref.VoterPhoneNumber,
		fieldThreadGatewayPhone: ref.GatewayPhoneNumber,
	})
}

// UnindexThreads drops the owner index of every thread (channel ID to
// thread ts) and reports how many entries were indexed.
func (s *Sessions) UnindexThreads(ctx context.Context, threads map[string]string) (int64, error) {
	keys := make([]string, 0, len(threads))
	for channelID, threadTs := range threads {
		keys = append(keys, ThreadKey(channelID, threadTs))
	}
	return s.store.DeleteKeys(ctx, keys...)
}

// IsBlocked checks a block list (OutboundBlockKey or InboundBlockKey).
func (s *Sessions) IsBlocked(ctx context.Context, list, phoneNumber string) (bool, error) {
	v, ok, err := s.store.GetField(ctx, list, phoneNumber)
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

func (s *Sessions) Block(ctx context.Context, list, phoneNumber string) error {
	return s.store.SetField(ctx, list, phoneNumber, "1")
}

func (s *Sessions) Unblock(ctx context.Context, list, phoneNumber string) error {
	return s.store.DeleteField(ctx, list, phoneNumber)
}

// ChannelDirectory returns channel name -> id.
func (s *Sessions) ChannelDirectory(ctx context.Context) (map[string]string, error) {
	return s.store.GetHash(ctx, ChannelDirectoryKey)
}

func (s *Sessions) ReplaceChannelDirectory(ctx context.Context, nameToID map[string]string) error {
	return s.store.ReplaceHash(ctx, ChannelDirectoryKey, nameToID)
}

// ChannelNames inverts the directory to id -> name.
func (s *Sessions) ChannelNames(ctx context.Context) (map[string]string, error) {
	dir, err := s.ChannelDirectory(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(dir))
	for name, id := range dir {
		names[id] = name
	}
	return names, nil
}
