// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/migration"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
)

// Admin control room commands
const (
	adminRoute = "route"
	adminReset = "reset"
)

const parseErrorNote = "*Operator:* Your command could not be parsed (did you closely follow the required format)?"

// AdminMention is a message mentioning the bot.
type AdminMention struct {
	ChannelID string `json:"channel"`
	Ts        string `json:"ts"`
	UserID    string `json:"user"`
	Text      string `json:"text"`
}

// AdminCommand is a parsed control room command:
//
//	@bot route <voter id> <gateway number> <channel>
//	@bot reset <voter id> <gateway number>
type AdminCommand struct {
	Name         string
	VoterID      string
	GatewayPhone string
	Channel      string
}

// ParseAdminCommand parses the text of a bot mention.
func ParseAdminCommand(text string) (AdminCommand, bool) {
	plain, _ := relay.ProcessText(text)
	// mentions are rendered as <@U123>, which ProcessText leaves as @U123
	var fields []string
	for _, f := range strings.Fields(plain) {
		if strings.HasPrefix(f, "@") {
			continue
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return AdminCommand{}, false
	}
	cmd := AdminCommand{Name: strings.ToLower(fields[0])}
	args := fields[1:]
	switch {
	case cmd.Name == adminRoute && len(args) == 3:
		cmd.Channel = strings.TrimPrefix(args[2], "#")
	case cmd.Name == adminReset && len(args) == 2:
	default:
		return AdminCommand{}, false
	}
	cmd.VoterID, cmd.GatewayPhone = args[0], args[1]
	return cmd, true
}

// HandleAdminMention runs a command posted in the admin control room.
// Mentions anywhere else are ignored.
func (m *Machine) HandleAdminMention(ctx context.Context, ev AdminMention) error {
	if ev.ChannelID != m.cfg.AdminChannelID {
		return nil
	}
	userName := m.userName(ctx, ev.UserID)
	slog.Info("admin command", "user", userName, "text", ev.Text)

	cmd, ok := ParseAdminCommand(ev.Text)
	if !ok {
		return m.relay.Note(ctx, ev.ChannelID, ev.Ts, parseErrorNote)
	}
	s, err := m.sessions.Get(ctx, cmd.VoterID, cmd.GatewayPhone)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		note := fmt.Sprintf("*Operator:* No record found for user ID (%s) and/or Twilio phone number (%s).", cmd.VoterID, cmd.GatewayPhone)
		return m.relay.Note(ctx, ev.ChannelID, ev.Ts, note)
	}

	err = m.log.LogCommand(ctx, models.CommandRecord{
		VoterID:        s.VoterID,
		GatewayPhone:   s.GatewayPhoneNumber,
		Command:        cmd.Name,
		Args:           cmd.Channel,
		IssuedByUserID: ev.UserID,
		ChannelID:      ev.ChannelID,
		MessageTs:      ev.Ts,
	})
	if err != nil {
		slog.Error("failed to log command", "command", cmd.Name, "voter_id", s.VoterID, "error", err)
	}

	switch cmd.Name {
	case adminRoute:
		return m.adminRoute(ctx, s, ev, cmd.Channel, userName)
	default:
		return m.resetDemo(ctx, s, ev, userName)
	}
}

func (m *Machine) adminRoute(ctx context.Context, s *models.SessionState, ev AdminMention, channel, userName string) error {
	if s.ActiveChannelName == channel {
		note := fmt.Sprintf("*Operator:* Voter's thread in %s is already the active thread.", channel)
		return m.relay.Note(ctx, ev.ChannelID, ev.Ts, note)
	}
	s.VolunteerEngaged = true
	_, err := m.migrator.Migrate(ctx, s, channel, migration.Reason{
		RoutedBy:            userName,
		PreviousChannelName: s.ActiveChannelName,
		CommandChannelID:    ev.ChannelID,
		CommandThreadTs:     ev.Ts,
		CommandTs:           ev.Ts,
	})
	if errors.Is(err, migration.ErrChannelNotFound) {
		return nil
	}
	return err
}

// resetDemo tears down a demo conversation so the tester can start over.
func (m *Machine) resetDemo(ctx context.Context, s *models.SessionState, ev AdminMention, userName string) error {
	if !s.IsDemo {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.Ts, "*Operator:* Only demo conversations can be reset.")
	}

	if err := m.sessions.Delete(ctx, s.VoterID, s.GatewayPhoneNumber); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	unindexed, err := m.sessions.UnindexThreads(ctx, s.Threads)
	if err != nil {
		slog.Warn("failed to unindex threads", "voter_id", s.VoterID, "error", err)
	} else if int(unindexed) < len(s.Threads) {
		slog.Warn("demo threads missing from index", "voter_id", s.VoterID, "indexed", unindexed, "threads", len(s.Threads))
	}

	if threadTs := s.ActiveThreadTs(); threadTs != "" && s.ActiveChannelID != models.NonexistentLobby {
		note := fmt.Sprintf(":white_check_mark: This demo conversation was closed by *%s* on *%s*. :white_check_mark:", userName, chatTime(m.now()))
		if err := m.migrator.ClosePanel(ctx, s, s.ActiveChannelID, threadTs, note); err != nil {
			slog.Warn("failed to close demo panel", "voter_id", s.VoterID, "error", err)
		}
		if err := m.log.SetThreadNeedsAttention(ctx, s.ActiveChannelID, threadTs, false); err != nil {
			slog.Warn("failed to clear needs attention", "voter_id", s.VoterID, "error", err)
		}
	}
	if err := m.log.ArchiveDemoVoter(ctx, s.VoterID, s.GatewayPhoneNumber); err != nil {
		return fmt.Errorf("archive demo voter: %w", err)
	}
	for _, list := range []string{cache.OutboundBlockKey, cache.InboundBlockKey} {
		if err := m.sessions.Unblock(ctx, list, s.VoterPhoneNumber); err != nil {
			return fmt.Errorf("unblock voter: %w", err)
		}
	}

	slog.Info("reset demo voter", "voter_id", s.VoterID, "by", userName)
	m.relay.React(ctx, ev.ChannelID, ev.Ts, "white_check_mark")
	return nil
}
