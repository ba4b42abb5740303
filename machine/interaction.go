// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/panel"
	"github.com/danielhkuo/helpline-router/relay"
)

// Interaction is a click on a voter panel.
type Interaction struct {
	ActionID string `json:"actionId"`
	// selected status, button value or selected user
	Value     string `json:"value"`
	UserID    string `json:"user"`
	ChannelID string `json:"channel"`
	MessageTs string `json:"messageTs"`
}

type statusChange struct {
	status   models.VoterStatus
	userID   string
	userName string
	// REFUSED and SPAM buttons also block the voter
	button bool
}

// HandleInteraction applies a panel action to the voter whose thread the
// panel opens.
func (m *Machine) HandleInteraction(ctx context.Context, in Interaction) error {
	ref, ok, err := m.sessions.ThreadOwner(ctx, in.ChannelID, in.MessageTs)
	if err != nil {
		return fmt.Errorf("look up thread owner: %w", err)
	}
	if !ok {
		slog.Warn("interaction on unknown panel", "channel", in.ChannelID, "ts", in.MessageTs, "action", in.ActionID)
		return nil
	}
	s, err := m.sessions.Get(ctx, auth.VoterID(ref.VoterPhoneNumber), ref.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		slog.Warn("interaction for voter without session", "channel", in.ChannelID, "ts", in.MessageTs)
		return nil
	}

	userName := m.userName(ctx, in.UserID)
	switch in.ActionID {
	case panel.ActionStatusSelect:
		status := models.VoterStatus(in.Value)
		if !slices.Contains(models.AllVoterStatuses, status) || status.Blocking() {
			return fmt.Errorf("invalid voter status %q", in.Value)
		}
		return m.changeStatus(ctx, s, in.ChannelID, in.MessageTs, statusChange{status: status, userID: in.UserID, userName: userName})
	case panel.ActionStatusRefused, panel.ActionStatusSpam:
		status := models.VoterStatusRefused
		if in.ActionID == panel.ActionStatusSpam {
			status = models.VoterStatusSpam
		}
		return m.changeStatus(ctx, s, in.ChannelID, in.MessageTs, statusChange{status: status, userID: in.UserID, userName: userName, button: true})
	case panel.ActionStatusUndo:
		return m.undoStatus(ctx, s, in.ChannelID, in.MessageTs, in.UserID, userName)
	case panel.ActionVolunteerSelect:
		return m.claimVoter(ctx, s, in.ChannelID, in.MessageTs, in.Value, in.UserID, userName)
	case panel.ActionVolunteerRelease:
		return m.claimVoter(ctx, s, in.ChannelID, in.MessageTs, "", in.UserID, userName)
	default:
		slog.Warn("unknown panel action", "action", in.ActionID)
		return nil
	}
}

func chatTime(t time.Time) string {
	return fmt.Sprintf("<!date^%d^{date_num} {time_secs}|%s>", t.Unix(), t.UTC().Format(time.RFC3339))
}

// changeStatus records a voter status, announces it in the thread and
// re-renders the panel.
func (m *Machine) changeStatus(ctx context.Context, s *models.SessionState, channelID, threadTs string, c statusChange) error {
	if c.button && c.status.Blocking() {
		if err := m.sessions.Block(ctx, cache.OutboundBlockKey, s.VoterPhoneNumber); err != nil {
			return fmt.Errorf("block voter: %w", err)
		}
		if c.status == models.VoterStatusSpam {
			if err := m.sessions.Block(ctx, cache.InboundBlockKey, s.VoterPhoneNumber); err != nil {
				return fmt.Errorf("block voter: %w", err)
			}
		}
	}

	note := fmt.Sprintf("*Operator:* Voter status changed to *%s* by *%s* at *%s*.", c.status, c.userName, chatTime(m.now()))
	if err := m.relay.Note(ctx, channelID, threadTs, note); err != nil {
		slog.Warn("failed to announce status change", "voter_id", s.VoterID, "error", err)
	}
	if err := m.log.LogVoterStatus(ctx, m.statusUpdate(s, c.status, c.userID, c.userName)); err != nil {
		return fmt.Errorf("log voter status: %w", err)
	}
	slog.Info("voter status changed", "voter_id", s.VoterID, "status", c.status, "by", c.userName)
	return m.refreshPanel(ctx, s, channelID, threadTs)
}

// undoStatus lifts a REFUSED or SPAM status, restoring the status before it.
func (m *Machine) undoStatus(ctx context.Context, s *models.SessionState, channelID, threadTs, userID, userName string) error {
	status, err := m.log.LatestNonBlockingStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load voter status: %w", err)
	}
	for _, list := range []string{cache.OutboundBlockKey, cache.InboundBlockKey} {
		if err := m.sessions.Unblock(ctx, list, s.VoterPhoneNumber); err != nil {
			return fmt.Errorf("unblock voter: %w", err)
		}
	}
	return m.changeStatus(ctx, s, channelID, threadTs, statusChange{status: status, userID: userID, userName: userName})
}

func (m *Machine) claimVoter(ctx context.Context, s *models.SessionState, channelID, threadTs, volunteerID, userID, userName string) error {
	err := m.log.LogVolunteerClaim(ctx, models.VolunteerClaim{
		VoterID:            s.VoterID,
		VoterPhoneNumber:   s.VoterPhoneNumber,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		IsDemo:             s.IsDemo,
		VolunteerID:        volunteerID,
		ClaimedByID:        userID,
	})
	if err != nil {
		return fmt.Errorf("log volunteer claim: %w", err)
	}

	note := fmt.Sprintf("*Operator:* Volunteer claim released by *%s* at *%s*.", userName, chatTime(m.now()))
	if volunteerID != "" {
		note = fmt.Sprintf("*Operator:* Volunteer changed to *<@%s>* by *%s* at *%s*.", volunteerID, userName, chatTime(m.now()))
	}
	if err := m.relay.Note(ctx, channelID, threadTs, note); err != nil {
		slog.Warn("failed to announce volunteer claim", "voter_id", s.VoterID, "error", err)
	}
	return m.refreshPanel(ctx, s, channelID, threadTs)
}

// refreshPanel re-renders a thread's panel from the durable log.
func (m *Machine) refreshPanel(ctx context.Context, s *models.SessionState, channelID, threadTs string) error {
	status, err := m.log.LatestVoterStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load voter status: %w", err)
	}
	volunteer, err := m.log.CurrentVolunteer(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load volunteer claim: %w", err)
	}
	p := panel.FromSession(s, status, volunteer)
	if err := m.chat.UpdateMessage(ctx, channelID, threadTs, relay.ChatMessage{Text: p.Text(), Blocks: p.Blocks()}); err != nil {
		return fmt.Errorf("update panel: %w", err)
	}
	return nil
}
