// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/migration"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/region"
	"github.com/danielhkuo/helpline-router/relay"
)

// ErrUnexpectedState is returned when a session is in a shape no event can
// be applied to.
var ErrUnexpectedState = errors.New("unexpected session state")

// Texts from the first seconds of a session still belong to it.
const sessionStartSlop = 10 * time.Second

// automatedUser is recorded as the originator of status changes the
// helpline makes on its own.
const automatedUser = "AUTOMATED"

// Selector picks the destination channel for a voter.
type Selector interface {
	SelectChannel(ctx context.Context, entryPoint models.EntryPoint, regionName string, isDemo bool) (string, bool, error)
}

type Config struct {
	Organization       string
	RequireDisclaimer  bool
	DemoGatewayNumbers []string
	DemoVoterNumbers   []string
	// gateway number -> region of PUSH campaigns
	PushNumberRegions map[string]string
	AdminChannelID    string
	BotUserID         string
}

// Machine applies voter texts, volunteer replies and operator actions to
// voter sessions.
type Machine struct {
	cfg      Config
	sessions *cache.Sessions
	log      db.Log
	relay    *relay.Relay
	chat     relay.Chat
	selector Selector
	migrator *migration.Migrator
	msgs     Messages
	now      func() time.Time
}

func New(cfg Config, sessions *cache.Sessions, log db.Log, rl *relay.Relay, selector Selector, migrator *migration.Migrator) *Machine {
	return &Machine{
		cfg:      cfg,
		sessions: sessions,
		log:      log,
		relay:    rl,
		chat:     rl.Chat(),
		selector: selector,
		migrator: migrator,
		msgs:     MessagesFor(cfg.Organization),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for session timestamps.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// IsDemo reports whether a conversation is a demo: the gateway is a demo
// number or the voter is a registered tester.
func (m *Machine) IsDemo(gatewayPhone, voterPhone string) bool {
	return slices.Contains(m.cfg.DemoGatewayNumbers, gatewayPhone) ||
		slices.Contains(m.cfg.DemoVoterNumbers, voterPhone)
}

// HandleInboundSMS applies one voter text. Redelivered texts are dropped
// once their durable row exists.
func (m *Machine) HandleInboundSMS(ctx context.Context, in relay.Inbound) error {
	blocked, err := m.sessions.IsBlocked(ctx, cache.InboundBlockKey, in.VoterPhoneNumber)
	if err != nil {
		return fmt.Errorf("check inbound block list: %w", err)
	}
	if blocked {
		slog.Info("dropping text from blocked number", "voter", auth.MaskPhone(in.VoterPhoneNumber))
		return nil
	}

	voterID := auth.VoterID(in.VoterPhoneNumber)
	s, err := m.sessions.Get(ctx, voterID, in.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return m.handleNew(ctx, voterID, in)
	}

	for _, problem := range CheckSession(s, m.cfg.RequireDisclaimer) {
		slog.Warn("inconsistent session", "voter_id", voterID, "problem", problem)
	}

	entry, fresh, err := m.relay.ReserveInbound(ctx, in, s)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	text := relay.VoterMessageText(in.Body, in.Attachments)

	done, err := m.handleBlocked(ctx, s, entry, in.Body, text)
	if err != nil || done {
		return err
	}
	if s.ActiveThreadTs() == "" {
		return fmt.Errorf("%w: voter %s has no active thread", ErrUnexpectedState, voterID)
	}

	state := StateOf(s, m.cfg.RequireDisclaimer)
	slog.Debug("handling voter text", "voter_id", voterID, "state", state)
	switch state {
	case StateDisclaimerPending:
		return m.handleDisclaimer(ctx, s, entry, in.Body, text)
	case StateRegionPending:
		return m.handleRegion(ctx, s, entry, in.Body, text)
	default:
		return m.handleActive(ctx, s, entry, in.Body, text)
	}
}

// handleNew opens a session for a first-time voter.
func (m *Machine) handleNew(ctx context.Context, voterID string, in relay.Inbound) error {
	if IsStop(in.Body) {
		for _, list := range []string{cache.OutboundBlockKey, cache.InboundBlockKey} {
			if err := m.sessions.Block(ctx, list, in.VoterPhoneNumber); err != nil {
				return fmt.Errorf("block new voter: %w", err)
			}
		}
		slog.Info("new voter opted out", "voter_id", voterID)
		return nil
	}

	now := m.now()
	s := &models.SessionState{
		VoterID:               voterID,
		VoterPhoneNumber:      in.VoterPhoneNumber,
		GatewayPhoneNumber:    in.GatewayPhoneNumber,
		EntryPoint:            in.EntryPoint,
		IsDemo:                m.IsDemo(in.GatewayPhoneNumber, in.VoterPhoneNumber),
		LastVoterMessageEpoch: now.Unix(),
		SessionStartEpoch:     now.Add(-sessionStartSlop).Unix(),
	}
	if in.EntryPoint == models.EntryPointPush {
		s.StateName = m.cfg.PushNumberRegions[in.GatewayPhoneNumber]
	}

	entry, fresh, err := m.relay.ReserveInbound(ctx, in, s)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	if err := m.logInitialStatus(ctx, s); err != nil {
		return err
	}
	channel, err := m.initialChannel(ctx, s)
	if err != nil {
		return err
	}
	if _, err := m.migrator.Open(ctx, s, channel); err != nil {
		return err
	}
	slog.Info("new voter", "voter_id", voterID, "entry_point", s.EntryPoint, "channel", channel, "demo", s.IsDemo)

	if s.EntryPoint == models.EntryPointPush {
		// the outreach text and this reply arrive with the history
		if err := m.relay.AttachInbound(ctx, s, entry); err != nil {
			return err
		}
		return m.migrator.Replay(ctx, s, time.Unix(s.SessionStartEpoch, 0))
	}

	m.forward(ctx, s, entry, relay.VoterMessageText(in.Body, in.Attachments))
	m.automated(ctx, s, m.msgs.Welcome)
	return nil
}

// logInitialStatus records UNKNOWN unless an earlier session left a status.
func (m *Machine) logInitialStatus(ctx context.Context, s *models.SessionState) error {
	status, err := m.log.LatestVoterStatus(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return fmt.Errorf("load voter status: %w", err)
	}
	if status != models.VoterStatusUnknown {
		return nil
	}
	return m.log.LogVoterStatus(ctx, m.statusUpdate(s, models.VoterStatusUnknown, "", automatedUser))
}

func (m *Machine) initialChannel(ctx context.Context, s *models.SessionState) (string, error) {
	if s.EntryPoint != models.EntryPointPush {
		if s.IsDemo {
			return models.DemoLobbyChannel, nil
		}
		return models.LobbyChannel, nil
	}
	name, ok, err := m.selector.SelectChannel(ctx, models.EntryPointPush, s.StateName, s.IsDemo)
	if err != nil {
		return "", fmt.Errorf("select channel: %w", err)
	}
	if ok {
		return name, nil
	}
	slog.Warn("no weighted channel for push voter, using fallback", "voter_id", s.VoterID, "region", s.StateName)
	if s.IsDemo {
		return models.DemoNationalChannel, nil
	}
	return models.NationalChannel, nil
}

// handleBlocked applies opt-outs and reports whether the text was fully
// handled because the voter is blocked.
func (m *Machine) handleBlocked(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, body, text string) (bool, error) {
	blocked, err := m.sessions.IsBlocked(ctx, cache.OutboundBlockKey, s.VoterPhoneNumber)
	if err != nil {
		return false, fmt.Errorf("check outbound block list: %w", err)
	}
	if IsStop(body) {
		slog.Info("voter opted out", "voter_id", s.VoterID)
		if threadTs := s.ActiveThreadTs(); threadTs != "" && s.ActiveChannelID != models.NonexistentLobby {
			change := statusChange{status: models.VoterStatusRefused, userName: automatedUser, button: true}
			if err := m.changeStatus(ctx, s, s.ActiveChannelID, threadTs, change); err != nil {
				return true, err
			}
		} else if err := m.sessions.Block(ctx, cache.OutboundBlockKey, s.VoterPhoneNumber); err != nil {
			return true, fmt.Errorf("block voter: %w", err)
		}
		blocked = true
	}
	if !blocked {
		return false, nil
	}
	if s.ActiveThreadTs() != "" {
		m.forward(ctx, s, entry, text)
	}
	return true, nil
}

func (m *Machine) handleDisclaimer(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, body, text string) error {
	m.forward(ctx, s, entry, text)
	s.LastVoterMessageEpoch = m.now().Unix()

	reply := m.msgs.ClarifyDisclaimer
	if IsDisclaimerAccepted(body) {
		s.ConfirmedDisclaimer = true
		reply = m.msgs.StateQuestion
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.automated(ctx, s, reply)
	return nil
}

func (m *Machine) handleRegion(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, body, text string) error {
	m.forward(ctx, s, entry, text)
	s.LastVoterMessageEpoch = m.now().Unix()
	s.NumRegionSelectionAttempts++

	name, ok := region.Parse(body)
	switch {
	case ok:
		s.StateName = name
	case s.NumRegionSelectionAttempts < RegionAttemptLimit:
		if err := m.sessions.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		m.automated(ctx, s, m.msgs.ClarifyState)
		return nil
	default:
		s.StateName = models.NationalRegion
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if ok {
		m.automated(ctx, s, m.msgs.StateConfirmation(name))
	} else {
		m.automated(ctx, s, m.msgs.NoStateFindingVolunteer)
	}

	dest, err := m.pullChannel(ctx, s)
	if err != nil {
		return err
	}
	_, err = m.migrator.Migrate(ctx, s, dest, migration.Reason{})
	if errors.Is(err, migration.ErrChannelNotFound) {
		// reported in the voter's current thread
		slog.Error("region channel not found", "voter_id", s.VoterID, "region", s.StateName, "channel", dest)
		return nil
	}
	return err
}

// pullChannel picks a region channel for a voter leaving the lobby.
func (m *Machine) pullChannel(ctx context.Context, s *models.SessionState) (string, error) {
	name, ok, err := m.selector.SelectChannel(ctx, models.EntryPointPull, s.StateName, s.IsDemo)
	if err != nil {
		return "", fmt.Errorf("select channel: %w", err)
	}
	if ok {
		return name, nil
	}
	slog.Warn("no weighted channel for voter, using fallback", "voter_id", s.VoterID, "region", s.StateName)
	if s.IsDemo {
		return models.DemoNationalZeroChannel, nil
	}
	return models.NationalZeroChannel, nil
}

func (m *Machine) handleActive(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, body, text string) error {
	now := m.now()
	last := time.Unix(s.LastVoterMessageEpoch, 0)
	s.LastVoterMessageEpoch = now.Unix()

	m.forward(ctx, s, entry, text)
	if err := m.log.SetThreadNeedsAttention(ctx, s.ActiveChannelID, s.ActiveThreadTs(), true); err != nil {
		slog.Error("failed to flag thread", "voter_id", s.VoterID, "error", err)
	}

	if now.Sub(last) > ReengageAfter && !s.VolunteerEngaged {
		if IsVoted(body) {
			m.automated(ctx, s, m.msgs.VotedWelcome)
			if err := m.recordVoted(ctx, s); err != nil {
				slog.Error("failed to record voted status", "voter_id", s.VoterID, "error", err)
			}
		} else {
			m.automated(ctx, s, m.msgs.WelcomeBack)
		}
	}

	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Machine) recordVoted(ctx context.Context, s *models.SessionState) error {
	channelID, threadTs := s.ActiveChannelID, s.ActiveThreadTs()
	if err := m.relay.Note(ctx, channelID, threadTs, "*Operator:* Voter status changed to *VOTED* by user text."); err != nil {
		return err
	}
	if err := m.log.LogVoterStatus(ctx, m.statusUpdate(s, models.VoterStatusVoted, "", automatedUser)); err != nil {
		return fmt.Errorf("log voter status: %w", err)
	}
	return m.refreshPanel(ctx, s, channelID, threadTs)
}

// forward relays a voter text into the active thread. A failed post is
// already recorded on the text's row and does not stop the transition.
func (m *Machine) forward(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, text string) {
	if err := m.relay.ForwardInbound(ctx, s, entry, text); err != nil {
		slog.Error("failed to relay voter text", "voter_id", s.VoterID, "channel", s.ActiveChannelID, "error", err)
	}
}

// automated texts the voter. Failures are announced in the active thread.
func (m *Machine) automated(ctx context.Context, s *models.SessionState, text string) {
	err := m.relay.Automated(ctx, s, text)
	if err == nil || errors.Is(err, relay.ErrSuppressed) {
		return
	}
	slog.Error("failed to send automated text", "voter_id", s.VoterID, "error", err)
	if threadTs := s.ActiveThreadTs(); threadTs != "" {
		note := fmt.Sprintf("*Operator:* Automated message was not delivered to the voter: %s", err)
		if nerr := m.relay.Note(ctx, s.ActiveChannelID, threadTs, note); nerr != nil {
			slog.Warn("failed to post delivery failure note", "voter_id", s.VoterID, "error", nerr)
		}
	}
}

func (m *Machine) statusUpdate(s *models.SessionState, status models.VoterStatus, userID, userName string) models.VoterStatusUpdate {
	return models.VoterStatusUpdate{
		VoterID:            s.VoterID,
		VoterPhoneNumber:   s.VoterPhoneNumber,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		Status:             status,
		OriginatingUserID:  userID,
		OriginatingUser:    userName,
		IsDemo:             s.IsDemo,
	}
}
