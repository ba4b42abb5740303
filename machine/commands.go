// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielhkuo/helpline-router/migration"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/region"
)

// Thread commands
const (
	cmdRoute          = "!route"
	cmdState          = "!state"
	cmdFakeOldSession = "!fake-old-session"
	cmdResumeSession  = "!resume-session"
	cmdNewSession     = "!new-session"
)

const unknownCommandNote = "*Operator:* Unrecognized command (messages to voters should not start with `!`)"

// handleCommand runs an operator command posted in the voter's active
// thread. Only admins may run commands.
func (m *Machine) handleCommand(ctx context.Context, s *models.SessionState, ev ChatEvent, text, userName string) error {
	admin, err := m.chat.IsAdmin(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		slog.Info("rejected command from non-admin", "user", ev.UserID, "voter_id", s.VoterID)
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return nil
	}

	name, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	args = strings.TrimSpace(args)
	m.recordCommand(ctx, s, ev, name, args)

	switch {
	case name == cmdRoute && args != "":
		return m.routeCommand(ctx, s, ev, args, userName)
	case name == cmdState && args != "":
		return m.stateCommand(ctx, s, ev, args, userName)
	case name == cmdFakeOldSession && args == "":
		if err := m.sessions.ClearSessionStart(ctx, s.VoterID, s.GatewayPhoneNumber); err != nil {
			return fmt.Errorf("clear session start: %w", err)
		}
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "white_check_mark")
		return nil
	case name == cmdResumeSession && args == "":
		return m.resumeSession(ctx, s, ev)
	case name == cmdNewSession:
		return m.newSession(ctx, s, ev, args)
	default:
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, unknownCommandNote)
	}
}

func (m *Machine) recordCommand(ctx context.Context, s *models.SessionState, ev ChatEvent, name, args string) {
	err := m.log.LogCommand(ctx, models.CommandRecord{
		VoterID:        s.VoterID,
		GatewayPhone:   s.GatewayPhoneNumber,
		Command:        name,
		Args:           args,
		IssuedByUserID: ev.UserID,
		ChannelID:      ev.ChannelID,
		MessageTs:      ev.Ts,
	})
	if err != nil {
		slog.Error("failed to log command", "command", name, "voter_id", s.VoterID, "error", err)
	}
}

func (m *Machine) commandReason(ctx context.Context, ev ChatEvent, userName string) migration.Reason {
	names, err := m.sessions.ChannelNames(ctx)
	if err != nil {
		slog.Warn("failed to load channel names", "error", err)
	}
	return migration.Reason{
		RoutedBy:            userName,
		PreviousChannelName: names[ev.ChannelID],
		CommandChannelID:    ev.ChannelID,
		CommandThreadTs:     ev.ThreadTs,
		CommandTs:           ev.Ts,
	}
}

// migrateByCommand moves the voter. A missing channel was already reported
// in the command thread.
func (m *Machine) migrateByCommand(ctx context.Context, s *models.SessionState, destination string, reason migration.Reason) error {
	// routing by hand counts as engaging the voter
	s.VolunteerEngaged = true
	_, err := m.migrator.Migrate(ctx, s, destination, reason)
	if errors.Is(err, migration.ErrChannelNotFound) {
		slog.Info("route to unknown channel", "voter_id", s.VoterID, "channel", destination)
		return nil
	}
	return err
}

func (m *Machine) routeCommand(ctx context.Context, s *models.SessionState, ev ChatEvent, channel, userName string) error {
	channel = strings.TrimPrefix(channel, "#")
	return m.migrateByCommand(ctx, s, channel, m.commandReason(ctx, ev, userName))
}

func (m *Machine) stateCommand(ctx context.Context, s *models.SessionState, ev ChatEvent, arg, userName string) error {
	name, ok := region.Parse(arg)
	if !ok {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, fmt.Sprintf("*Operator:* Unrecognized state '%s'", arg))
	}
	dest, ok, err := m.selector.SelectChannel(ctx, models.EntryPointPull, name, s.IsDemo)
	if err != nil {
		return fmt.Errorf("select channel: %w", err)
	}
	if !ok {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, fmt.Sprintf("*Operator:* No frontline channel for '%s'", name))
	}
	s.StateName = name
	return m.migrateByCommand(ctx, s, dest, m.commandReason(ctx, ev, userName))
}

// resumeSession restarts a stale session from its oldest open message.
func (m *Machine) resumeSession(ctx context.Context, s *models.SessionState, ev ChatEvent) error {
	if s.SessionStartEpoch != 0 {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return nil
	}
	oldest, found, err := m.log.OldestSessionMessage(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("find session start: %w", err)
	}
	if !found {
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, "*Operator:* Unable to identify start of session")
	}

	s.SessionStartEpoch = oldest.Unix()
	if err := m.refreshPanel(ctx, s, s.ActiveChannelID, s.ActiveThreadTs()); err != nil {
		slog.Warn("failed to refresh panel", "voter_id", s.VoterID, "error", err)
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, "*Operator:* This session is no longer stale")
}

// newSession ends the voter's session and opens a fresh one in channel,
// or in the current channel when none is named.
func (m *Machine) newSession(ctx context.Context, s *models.SessionState, ev ChatEvent, channel string) error {
	channel = strings.TrimPrefix(channel, "#")
	if channel == "" {
		channel = s.ActiveChannelName
	}
	if _, err := m.migrator.ResolveChannel(ctx, channel); err != nil {
		if !errors.Is(err, migration.ErrChannelNotFound) {
			return err
		}
		m.relay.React(ctx, ev.ChannelID, ev.Ts, "x")
		return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, fmt.Sprintf("*Operator:* Channel %s does not exist", channel))
	}

	if err := m.migrator.EndSession(ctx, s); err != nil {
		return err
	}
	s.SessionStartEpoch = m.now().Unix()
	s.VolunteerEngaged = false
	s.NumRegionSelectionAttempts = 0
	s.ReturningVoter = true
	s.PanelMessage = ""

	threadTs, err := m.migrator.Open(ctx, s, channel)
	if err != nil {
		return err
	}
	if err := m.migrator.Replay(ctx, s, m.now()); err != nil {
		slog.Warn("failed to post past sessions", "voter_id", s.VoterID, "error", err)
	}
	url, err := m.chat.Permalink(ctx, s.ActiveChannelID, threadTs)
	if err != nil {
		return fmt.Errorf("link new session: %w", err)
	}
	return m.relay.Note(ctx, ev.ChannelID, ev.ThreadTs, fmt.Sprintf("*Operator:* New session created: <%s|Open>", url))
}
