// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/dispatch"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/panel"
	"github.com/danielhkuo/helpline-router/relay"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	// ErrMigrationIncomplete wraps failures after the new thread exists.
	// Such migrations need manual reconciliation and are never retried.
	ErrMigrationIncomplete = errors.New("migration incomplete")
)

// TaskClosePanel is the dispatcher task that collapses an ended session's
// panel.
const TaskClosePanel = "closePanel"

const sessionClosedNote = "This voter helpline session is closed"

// Reason describes who moved the voter. RoutedBy is empty for automated
// moves; Command* identify the admin command that asked for the move.
type Reason struct {
	RoutedBy            string
	PreviousChannelName string
	CommandChannelID    string
	CommandThreadTs     string
	CommandTs           string
}

func (r Reason) fromCommand() bool {
	return r.CommandChannelID != "" && r.CommandTs != ""
}

// Migrator opens, moves and closes voter threads.
type Migrator struct {
	sessions   *cache.Sessions
	log        db.Log
	relay      *relay.Relay
	chat       relay.Chat
	dispatcher dispatch.Dispatcher
}

func New(sessions *cache.Sessions, log db.Log, rl *relay.Relay, dispatcher dispatch.Dispatcher) *Migrator {
	return &Migrator{
		sessions:   sessions,
		log:        log,
		relay:      rl,
		chat:       rl.Chat(),
		dispatcher: dispatcher,
	}
}

// ResolveChannel maps a channel name to its id, refreshing the cached
// directory from the chat platform once on a miss.
func (m *Migrator) ResolveChannel(ctx context.Context, name string) (string, error) {
	dir, err := m.sessions.ChannelDirectory(ctx)
	if err != nil {
		return "", fmt.Errorf("load channel directory: %w", err)
	}
	if id, ok := dir[name]; ok {
		return id, nil
	}

	fresh, err := m.chat.ChannelDirectory(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh channel directory: %w", err)
	}
	if err := m.sessions.ReplaceChannelDirectory(ctx, fresh); err != nil {
		slog.Warn("failed to cache channel directory", "error", err)
	}
	if id, ok := fresh[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, name)
}

// postPanel opens a thread in channelID with the voter's current panel.
func (m *Migrator) postPanel(ctx context.Context, s *models.SessionState, channelID string) (string, error) {
	status, err := m.log.LatestVoterStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return "", fmt.Errorf("load voter status: %w", err)
	}
	volunteer, err := m.log.CurrentVolunteer(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return "", fmt.Errorf("load volunteer claim: %w", err)
	}
	p := panel.FromSession(s, status, volunteer)
	_, ts, err := m.chat.PostMessage(ctx, channelID, relay.ChatMessage{Text: p.Text(), Blocks: p.Blocks()})
	if err != nil {
		return "", fmt.Errorf("post voter panel: %w", err)
	}
	return ts, nil
}

// attach makes channelID/threadTs the voter's active thread in the
// session, the reverse index and the durable log.
func (m *Migrator) attach(ctx context.Context, s *models.SessionState, channelID, channelName, threadTs string, needsAttention bool) error {
	s.SetThread(channelID, threadTs)
	s.ActiveChannelID = channelID
	s.ActiveChannelName = channelName

	ref := models.ThreadRef{VoterPhoneNumber: s.VoterPhoneNumber, GatewayPhoneNumber: s.GatewayPhoneNumber}
	if err := m.sessions.SetThreadOwner(ctx, channelID, threadTs, ref); err != nil {
		return fmt.Errorf("index thread: %w", err)
	}
	err := m.log.InsertThread(ctx, models.ThreadRecord{
		ThreadTs:           threadTs,
		ChannelID:          channelID,
		VoterID:            s.VoterID,
		VoterPhoneNumber:   s.VoterPhoneNumber,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		NeedsAttention:     needsAttention,
		IsDemo:             s.IsDemo,
		SessionStartEpoch:  s.SessionStartEpoch,
	})
	if err != nil {
		return fmt.Errorf("record thread: %w", err)
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Open starts a session's first thread in channelName. The thread needs
// attention until a volunteer replies.
func (m *Migrator) Open(ctx context.Context, s *models.SessionState, channelName string) (string, error) {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return "", err
	}
	threadTs, err := m.postPanel(ctx, s, channelID)
	if err != nil {
		return "", err
	}
	if err := m.attach(ctx, s, channelID, channelName, threadTs, true); err != nil {
		return threadTs, fmt.Errorf("%w: %w", ErrMigrationIncomplete, err)
	}
	slog.Info("opened voter thread", "voter_id", s.VoterID, "channel", channelName, "thread_ts", threadTs)
	return threadTs, nil
}

// Replay posts the history logged since `since` into the active thread.
func (m *Migrator) Replay(ctx context.Context, s *models.SessionState, since time.Time) error {
	threadTs := s.ActiveThreadTs()
	if threadTs == "" {
		return relay.ErrNoThread
	}
	historyTs, err := m.PostHistory(ctx, s, s.ActiveChannelID, threadTs, since)
	if err != nil {
		return err
	}
	if err := m.log.SetThreadHistoryTs(ctx, s.ActiveChannelID, threadTs, historyTs); err != nil {
		return fmt.Errorf("record history ts: %w", err)
	}
	return nil
}

// noteMissingChannel tells the voter's current thread that an automated
// move had nowhere to go.
func (m *Migrator) noteMissingChannel(ctx context.Context, s *models.SessionState, destination string) {
	threadTs := s.ActiveThreadTs()
	if threadTs == "" || s.ActiveChannelID == models.NonexistentLobby {
		slog.Error("channel not found for voter without a thread", "voter_id", s.VoterID, "channel", destination)
		return
	}
	note := fmt.Sprintf("*Operator:* Slack channel %s not found.", destination)
	if err := m.relay.Note(ctx, s.ActiveChannelID, threadTs, note); err != nil {
		slog.Warn("failed to post channel not found note", "voter_id", s.VoterID, "error", err)
	}
}

// Migrate moves the voter's active thread to destination and returns the
// new thread ts. Nothing changes when the destination cannot be resolved.
func (m *Migrator) Migrate(ctx context.Context, s *models.SessionState, destination string, reason Reason) (string, error) {
	channelID, err := m.ResolveChannel(ctx, destination)
	if err != nil {
		if errors.Is(err, ErrChannelNotFound) && reason.fromCommand() {
			note := fmt.Sprintf("*Operator:* Slack channel %s not found.", destination)
			if nerr := m.relay.Note(ctx, reason.CommandChannelID, reason.CommandThreadTs, note); nerr != nil {
				slog.Warn("failed to post channel not found note", "error", nerr)
			}
			m.relay.React(ctx, reason.CommandChannelID, reason.CommandTs, "x")
		} else if errors.Is(err, ErrChannelNotFound) {
			m.noteMissingChannel(ctx, s, destination)
		}
		return "", err
	}

	oldChannelID, oldThreadTs := s.ActiveChannelID, s.ActiveThreadTs()
	link := relay.ChannelLink(channelID, destination)
	hasOld := oldThreadTs != "" && oldChannelID != models.NonexistentLobby

	needsAttention := false
	if hasOld {
		note := "*Operator:* Routing voter to " + link + "."
		if reason.RoutedBy != "" {
			note = fmt.Sprintf("*Operator:* Voter is being routed to %s by *%s*.", link, reason.RoutedBy)
		}
		if err := m.relay.Note(ctx, oldChannelID, oldThreadTs, note); err != nil {
			return "", err
		}
		needsAttention, err = m.log.ThreadNeedsAttention(ctx, oldChannelID, oldThreadTs)
		if err != nil {
			return "", fmt.Errorf("load needs attention: %w", err)
		}
		if err := m.ClosePanel(ctx, s, oldChannelID, oldThreadTs, "Voter has been routed to "+link+"."); err != nil {
			return "", err
		}
	}
	if reason.RoutedBy != "" {
		s.PanelMessage = fmt.Sprintf("routed from *%s* by *%s*", reason.PreviousChannelName, reason.RoutedBy)
	}

	threadTs, err := m.postPanel(ctx, s, channelID)
	if err != nil {
		return "", err
	}
	if err := m.attach(ctx, s, channelID, destination, threadTs, needsAttention); err != nil {
		return threadTs, fmt.Errorf("%w: %w", ErrMigrationIncomplete, err)
	}

	if err := m.Replay(ctx, s, time.Unix(s.SessionStartEpoch, 0)); err != nil {
		return threadTs, fmt.Errorf("%w: %w", ErrMigrationIncomplete, err)
	}
	if hasOld {
		if err := m.log.SetThreadInactive(ctx, oldChannelID, oldThreadTs); err != nil {
			return threadTs, fmt.Errorf("%w: deactivate old thread: %w", ErrMigrationIncomplete, err)
		}
	}
	if reason.fromCommand() {
		m.relay.React(ctx, reason.CommandChannelID, reason.CommandTs, "heavy_check_mark")
	}

	slog.Info("migrated voter",
		"voter_id", s.VoterID,
		"from", oldChannelID,
		"to", destination,
		"thread_ts", threadTs,
		"routed_by", reason.RoutedBy,
	)
	return threadTs, nil
}

// ClosePanel replaces a thread's interactive panel with a static note.
func (m *Migrator) ClosePanel(ctx context.Context, s *models.SessionState, channelID, threadTs, note string) error {
	status, err := m.log.LatestVoterStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load voter status: %w", err)
	}
	return m.closeWith(ctx, panel.FromSession(s, status, ""), channelID, threadTs, note)
}

func (m *Migrator) closeWith(ctx context.Context, p panel.Panel, channelID, threadTs, note string) error {
	msg := relay.ChatMessage{Text: p.Text(), Blocks: p.ClosedBlocks(note)}
	if err := m.chat.UpdateMessage(ctx, channelID, threadTs, msg); err != nil {
		return fmt.Errorf("close panel: %w", err)
	}
	return nil
}

// ClosePanelArgs is the payload of TaskClosePanel.
type ClosePanelArgs struct {
	ChannelID string      `json:"channelId"`
	ThreadTs  string      `json:"threadTs"`
	Panel     panel.Panel `json:"panel"`
	Note      string      `json:"note"`
}

// ClosePanelTask runs TaskClosePanel.
func (m *Migrator) ClosePanelTask(ctx context.Context, raw json.RawMessage) error {
	var args ClosePanelArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decode close panel args: %w", err)
	}
	return m.closeWith(ctx, args.Panel, args.ChannelID, args.ThreadTs, args.Note)
}

// EndSession ends the voter's session: threads are marked ended, the
// volunteer claim is released and the cached session is removed. The
// panel is closed in the background.
func (m *Migrator) EndSession(ctx context.Context, s *models.SessionState) error {
	if err := m.log.SetSessionEnd(ctx, s.VoterID, s.GatewayPhoneNumber); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	err := m.log.LogVolunteerClaim(ctx, models.VolunteerClaim{
		VoterID:            s.VoterID,
		VoterPhoneNumber:   s.VoterPhoneNumber,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		IsDemo:             s.IsDemo,
	})
	if err != nil {
		return fmt.Errorf("release volunteer claim: %w", err)
	}
	status, err := m.log.LatestVoterStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load voter status: %w", err)
	}
	if err := m.sessions.Delete(ctx, s.VoterID, s.GatewayPhoneNumber); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	threadTs := s.ActiveThreadTs()
	if threadTs == "" || s.ActiveChannelID == models.NonexistentLobby {
		return nil
	}
	args := ClosePanelArgs{
		ChannelID: s.ActiveChannelID,
		ThreadTs:  threadTs,
		Panel:     panel.FromSession(s, status, ""),
		Note:      sessionClosedNote,
	}
	if err := m.dispatcher.Enqueue(ctx, TaskClosePanel, args); err != nil {
		slog.Error("failed to enqueue panel close", "voter_id", s.VoterID, "error", err)
	}
	slog.Info("ended voter session", "voter_id", s.VoterID, "gateway", s.GatewayPhoneNumber)
	return nil
}
