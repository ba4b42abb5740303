// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
)

const (
	blockedNote  = "*Operator:* Your message was not relayed, as this phone number has been added to our blocklist."
	goneNote     = "*Operator:* Your message was not relayed, as this thread is inactive. They have not reconnected to the helpline."
	inactiveNote = "*Operator:* Your message was not relayed, as this thread is inactive. The voter's active thread is in %s - <%s|Open>"
	staleNote    = "*Operator:* This helpline session is stale.\n`!resume-session` to resume\n`!new-session <channelname>` to open a fresh session in specified channel."
)

// ChatEvent is a message a volunteer posted in a chat thread.
type ChatEvent struct {
	ChannelID   string `json:"channel"`
	ThreadTs    string `json:"threadTs"`
	Ts          string `json:"ts"`
	UserID      string `json:"user"`
	Text        string `json:"text"`
	RetryNum    int    `json:"retryNum,omitempty"`
	RetryReason string `json:"retryReason,omitempty"`
}

// HandleChatMessage relays a volunteer message to the voter who owns the
// thread, or runs it as an operator command. Messages outside voter
// threads are ignored.
func (m *Machine) HandleChatMessage(ctx context.Context, ev ChatEvent) error {
	if ev.ThreadTs == "" || ev.ThreadTs == ev.Ts {
		return nil
	}
	ref, ok, err := m.sessions.ThreadOwner(ctx, ev.ChannelID, ev.ThreadTs)
	if err != nil {
		return fmt.Errorf("look up thread owner: %w", err)
	}
	if !ok {
		slog.Debug("ignoring message outside voter threads", "channel", ev.ChannelID, "thread_ts", ev.ThreadTs)
		return nil
	}

	blocked, err := m.sessions.IsBlocked(ctx, cache.OutboundBlockKey, ref.VoterPhoneNumber)
	if err != nil {
		return fmt.Errorf("check outbound block list: %w", err)
	}
	if blocked {
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, blockedNote)
	}

	s, err := m.sessions.Get(ctx, auth.VoterID(ref.VoterPhoneNumber), ref.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil || s.ActiveChannelID == "" {
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, goneNote)
	}
	if s.ActiveChannelID != ev.ChannelID || s.ActiveThreadTs() != ev.ThreadTs {
		return m.redirect(ctx, s, ev)
	}

	userName := m.userName(ctx, ev.UserID)
	text, _ := relay.ProcessText(ev.Text)
	if isCommand(text) {
		return m.handleCommand(ctx, s, ev, text, userName)
	}

	if s.SessionStartEpoch == 0 {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, staleNote)
	}

	s.LastVoterMessageEpoch = m.now().Unix()
	if !s.VolunteerEngaged {
		slog.Debug("volunteer engaged, suppressing automated texts", "voter_id", s.VoterID)
		s.VolunteerEngaged = true
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	outcome, err := m.relay.SendReply(ctx, s, relay.Reply{
		ChannelID:   ev.ChannelID,
		ThreadTs:    ev.ThreadTs,
		Ts:          ev.Ts,
		UserID:      ev.UserID,
		UserName:    userName,
		Text:        ev.Text,
		RetryNum:    ev.RetryNum,
		RetryReason: ev.RetryReason,
	})
	if err != nil {
		return err
	}
	slog.Info("volunteer reply", "voter_id", s.VoterID, "channel", ev.ChannelID, "outcome", outcome)
	if outcome == relay.Duplicate {
		return nil
	}
	if err := m.log.SetThreadNeedsAttention(ctx, ev.ChannelID, ev.ThreadTs, false); err != nil {
		slog.Error("failed to clear needs attention", "voter_id", s.VoterID, "error", err)
	}
	return nil
}

// redirect tells a volunteer posting in an old thread where the voter is.
func (m *Machine) redirect(ctx context.Context, s *models.SessionState, ev ChatEvent) error {
	url, err := m.chat.Permalink(ctx, s.ActiveChannelID, s.ActiveThreadTs())
	if err != nil {
		slog.Warn("failed to link active thread", "voter_id", s.VoterID, "error", err)
	}
	link := relay.ChannelLink(s.ActiveChannelID, s.ActiveChannelName)
	return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, fmt.Sprintf(inactiveNote, link, url))
}

// userName resolves a chat user, falling back to the raw id.
func (m *Machine) userName(ctx context.Context, userID string) string {
	name, err := m.chat.UserName(ctx, userID)
	if err != nil || name == "" {
		slog.Warn("failed to resolve user name", "user", userID, "error", err)
		return userID
	}
	return name
}
