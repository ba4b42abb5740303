// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/db"
	"github.com/danielhkuo/helpline-router/models"
)

var (
	// ErrSuppressed is returned when an automated message may not be sent
	// to the voter.
	ErrSuppressed = errors.New("automated message suppressed")
	ErrNoThread   = errors.New("session has no active thread")
)

// ClaimTTL bounds how long a relay claim blocks a redelivered event.
const ClaimTTL = 24 * time.Hour

// ChatMessage is a message posted to the chat platform. ThreadTs is empty
// for top-level messages.
type ChatMessage struct {
	Text     string
	Blocks   []slack.Block
	ThreadTs string
}

// Chat is the chat platform as the helpline uses it.
type Chat interface {
	// PostMessage accepts a channel name or id and returns the channel id
	// and the new message ts.
	PostMessage(ctx context.Context, channel string, msg ChatMessage) (string, string, error)
	UpdateMessage(ctx context.Context, channelID, ts string, msg ChatMessage) error
	AddReaction(ctx context.Context, channelID, ts, name string) error
	Permalink(ctx context.Context, channelID, ts string) (string, error)
	// ChannelDirectory lists channel name -> id.
	ChannelDirectory(ctx context.Context) (map[string]string, error)
	UserName(ctx context.Context, userID string) (string, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type SendParams struct {
	From           string
	To             string
	CallbackURL    string
	IdempotencyKey string
}

// SMS is the gateway that texts voters.
type SMS interface {
	Send(ctx context.Context, body string, p SendParams) (string, error)
}

// Relay moves messages between the SMS and chat sides and keeps the
// durable log in step with what was delivered.
type Relay struct {
	sessions    *cache.Sessions
	log         db.Log
	chat        Chat
	sms         SMS
	callbackURL string
	now         func() time.Time
}

func New(sessions *cache.Sessions, log db.Log, chat Chat, sms SMS, callbackURL string) *Relay {
	return &Relay{
		sessions:    sessions,
		log:         log,
		chat:        chat,
		sms:         sms,
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

// Chat exposes the chat client used for relaying.
func (r *Relay) Chat() Chat {
	return r.chat
}

func InboundKey(sid string) string {
	if sid == "" {
		return ""
	}
	return "sms:" + sid
}

func ReplyKey(channelID, ts string) string {
	return "chat:" + channelID + ":" + ts
}

func claimKey(idempotencyKey string) string {
	return "relay:claim:" + idempotencyKey
}

// ChannelLink renders a channel mention.
func ChannelLink(channelID, name string) string {
	if name == "" {
		return "<#" + channelID + ">"
	}
	return "<#" + channelID + "|" + name + ">"
}

// Note posts an operator-visible message into a thread.
func (r *Relay) Note(ctx context.Context, channelID, threadTs, text string) error {
	_, _, err := r.chat.PostMessage(ctx, channelID, ChatMessage{Text: text, ThreadTs: threadTs})
	if err != nil {
		return fmt.Errorf("post note: %w", err)
	}
	return nil
}

// React adds a reaction, logging instead of failing; reactions are
// feedback only.
func (r *Relay) React(ctx context.Context, channelID, ts, name string) {
	if err := r.chat.AddReaction(ctx, channelID, ts, name); err != nil {
		slog.Warn("failed to add reaction", "channel", channelID, "ts", ts, "reaction", name, "error", err)
	}
}

func fillVoter(e *models.MessageLogEntry, s *models.SessionState) {
	e.VoterID = s.VoterID
	e.VoterPhoneNumber = s.VoterPhoneNumber
	e.GatewayPhoneNumber = s.GatewayPhoneNumber
	e.EntryPoint = s.EntryPoint
	e.IsDemo = s.IsDemo
	e.StateName = s.StateName
}

// Inbound is a text received from a voter.
type Inbound struct {
	Sid                string
	VoterPhoneNumber   string
	GatewayPhoneNumber string
	Body               string
	Attachments        []string
	EntryPoint         models.EntryPoint
}

// ReserveInbound writes the durable row for an inbound text before any
// other effect. It reports false when the gateway redelivered a text that
// was already recorded.
func (r *Relay) ReserveInbound(ctx context.Context, in Inbound, s *models.SessionState) (*models.MessageLogEntry, bool, error) {
	now := r.now()
	entry := &models.MessageLogEntry{
		Direction:          models.DirectionInbound,
		Message:            in.Body,
		VoterPhoneNumber:   in.VoterPhoneNumber,
		GatewayPhoneNumber: in.GatewayPhoneNumber,
		EntryPoint:         in.EntryPoint,
		TwilioMessageSid:   in.Sid,
		TwilioAttachments:  in.Attachments,
		IdempotencyKey:     InboundKey(in.Sid),
		TwilioReceiveAt:    &now,
	}
	if s != nil {
		fillVoter(entry, s)
	}
	fresh, err := r.log.InsertMessage(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("reserve inbound message: %w", err)
	}
	if !fresh {
		slog.Info("dropping redelivered text", "sid", in.Sid)
	}
	return entry, fresh, nil
}

// VoterMessageText renders an inbound text, with attachment links, as it
// appears in the voter's thread.
func VoterMessageText(body string, attachments []string) string {
	if len(attachments) == 0 {
		return body
	}
	links := make([]string, len(attachments))
	for i, url := range attachments {
		links[i] = fmt.Sprintf("<%s|Attachment %d>", url, i+1)
	}
	return strings.TrimSpace(body + "\n*Attachments:* " + strings.Join(links, " "))
}

// ForwardInbound posts a reserved inbound text into the session's active
// thread and records the outcome on its row.
func (r *Relay) ForwardInbound(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry, text string) error {
	threadTs := s.ActiveThreadTs()
	if threadTs == "" {
		return ErrNoThread
	}
	_, ts, postErr := r.chat.PostMessage(ctx, s.ActiveChannelID, ChatMessage{Text: text, ThreadTs: threadTs})
	now := r.now()
	d := db.Delivery{
		SlackChannel:         s.ActiveChannelID,
		SlackParentMessageTs: threadTs,
		SlackMessageTs:       ts,
		SlackSendAt:          &now,
		SuccessfullySent:     postErr == nil,
	}
	if postErr != nil {
		d.SlackError = postErr.Error()
	}
	if entry != nil && entry.ID != "" {
		if err := r.log.UpdateMessageDelivery(ctx, entry.ID, d); err != nil {
			slog.Error("failed to record inbound delivery", "voter_id", s.VoterID, "error", err)
		}
	}
	if postErr != nil {
		return fmt.Errorf("relay inbound message: %w", postErr)
	}
	return nil
}

// AttachInbound records an inbound text as shown in the active thread
// without posting it, for threads that replay it with the history.
func (r *Relay) AttachInbound(ctx context.Context, s *models.SessionState, entry *models.MessageLogEntry) error {
	now := r.now()
	err := r.log.UpdateMessageDelivery(ctx, entry.ID, db.Delivery{
		SlackChannel:         s.ActiveChannelID,
		SlackParentMessageTs: s.ActiveThreadTs(),
		SlackSendAt:          &now,
		SuccessfullySent:     true,
	})
	if err != nil {
		return fmt.Errorf("record inbound delivery: %w", err)
	}
	return nil
}

// Automated texts the voter on behalf of the helpline and mirrors the text
// into the active thread. Sessions with an engaged volunteer and blocked
// numbers never receive automated texts.
func (r *Relay) Automated(ctx context.Context, s *models.SessionState, text string) error {
	if s.VolunteerEngaged {
		slog.Info("volunteer engaged, suppressing automated message", "voter_id", s.VoterID)
		return ErrSuppressed
	}
	blocked, err := r.sessions.IsBlocked(ctx, cache.OutboundBlockKey, s.VoterPhoneNumber)
	if err != nil {
		return fmt.Errorf("check block list: %w", err)
	}
	if blocked {
		slog.Info("voter blocked, suppressing automated message", "voter_id", s.VoterID)
		return ErrSuppressed
	}

	entry := &models.MessageLogEntry{
		Direction: models.DirectionOutbound,
		Automated: true,
		Message:   text,
	}
	fillVoter(entry, s)
	if err := r.sendLogged(ctx, entry, ""); err != nil {
		return err
	}

	if threadTs := s.ActiveThreadTs(); threadTs != "" {
		if _, _, err := r.chat.PostMessage(ctx, s.ActiveChannelID, ChatMessage{Text: text, ThreadTs: threadTs}); err != nil {
			slog.Warn("failed to mirror automated message", "voter_id", s.VoterID, "error", err)
		}
	}
	return nil
}

// Outreach texts a voter who may have no session yet, as in PUSH
// campaigns. Blocked numbers are skipped and reported with ErrSuppressed.
func (r *Relay) Outreach(ctx context.Context, from, to, text string) error {
	blocked, err := r.sessions.IsBlocked(ctx, cache.OutboundBlockKey, to)
	if err != nil {
		return fmt.Errorf("check block list: %w", err)
	}
	if blocked {
		return ErrSuppressed
	}
	entry := &models.MessageLogEntry{
		Direction:          models.DirectionOutbound,
		Automated:          true,
		Message:            text,
		VoterID:            auth.VoterID(to),
		VoterPhoneNumber:   to,
		GatewayPhoneNumber: from,
		EntryPoint:         models.EntryPointPush,
	}
	return r.sendLogged(ctx, entry, "")
}

// sendLogged texts entry.Message and writes the row with the outcome.
func (r *Relay) sendLogged(ctx context.Context, entry *models.MessageLogEntry, key string) error {
	sid, sendErr := r.sms.Send(ctx, entry.Message, SendParams{
		From:           entry.GatewayPhoneNumber,
		To:             entry.VoterPhoneNumber,
		CallbackURL:    r.callbackURL,
		IdempotencyKey: key,
	})
	now := r.now()
	entry.TwilioMessageSid = sid
	entry.TwilioSendAt = &now
	entry.SuccessfullySent = sendErr == nil
	if sendErr != nil {
		entry.TwilioError = sendErr.Error()
	}
	if _, err := r.log.InsertMessage(ctx, entry); err != nil {
		slog.Error("failed to log outbound message", "voter_id", entry.VoterID, "error", err)
	}
	if sendErr != nil {
		return fmt.Errorf("send text: %w", sendErr)
	}
	return nil
}

// Reply is a volunteer message posted in a voter thread.
type Reply struct {
	ChannelID   string
	ThreadTs    string
	Ts          string
	UserID      string
	UserName    string
	Text        string
	RetryNum    int
	RetryReason string
}

type Outcome int

const (
	Sent Outcome = iota
	Duplicate
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Duplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// SendReply texts a volunteer reply to the voter at most once per chat
// message. The claim guards concurrent redeliveries; the durable key
// guards everything else. A failed send is recorded and announced in the
// thread but not retried.
func (r *Relay) SendReply(ctx context.Context, s *models.SessionState, reply Reply) (Outcome, error) {
	key := ReplyKey(reply.ChannelID, reply.Ts)
	won, err := r.sessions.Store().Claim(ctx, claimKey(key), ClaimTTL)
	if err != nil {
		return Failed, fmt.Errorf("claim reply: %w", err)
	}
	if !won {
		slog.Info("dropping redelivered reply", "key", key, "retry_num", reply.RetryNum)
		return Duplicate, nil
	}

	text, changed := ProcessText(reply.Text)
	now := r.now()
	entry := &models.MessageLogEntry{
		Direction:            models.DirectionOutbound,
		Message:              text,
		OriginatingSlackUser: reply.UserID,
		SlackUserName:        reply.UserName,
		SlackChannel:         reply.ChannelID,
		SlackParentMessageTs: reply.ThreadTs,
		SlackMessageTs:       reply.Ts,
		SlackReceiveAt:       &now,
		SlackRetryNum:        reply.RetryNum,
		SlackRetryReason:     reply.RetryReason,
		IdempotencyKey:       key,
	}
	if changed {
		entry.UnprocessedMessage = reply.Text
	}
	fillVoter(entry, s)

	fresh, err := r.log.InsertMessage(ctx, entry)
	if err != nil {
		// nothing was sent; let the upstream redelivery through
		if _, relErr := r.sessions.Store().DeleteKeys(ctx, claimKey(key)); relErr != nil {
			slog.Error("failed to release reply claim", "key", key, "error", relErr)
		}
		return Failed, fmt.Errorf("reserve reply: %w", err)
	}
	if !fresh {
		slog.Info("reply already recorded", "key", key)
		return Duplicate, nil
	}

	sid, sendErr := r.sms.Send(ctx, text, SendParams{
		From:           s.GatewayPhoneNumber,
		To:             s.VoterPhoneNumber,
		CallbackURL:    r.callbackURL,
		IdempotencyKey: key,
	})
	sentAt := r.now()
	d := db.Delivery{TwilioMessageSid: sid, TwilioSendAt: &sentAt, SuccessfullySent: sendErr == nil}
	if sendErr != nil {
		d.TwilioError = sendErr.Error()
	}
	if err := r.log.UpdateMessageDelivery(ctx, entry.ID, d); err != nil {
		slog.Error("failed to record reply delivery", "key", key, "error", err)
	}

	if sendErr != nil {
		slog.Warn("reply not delivered", "voter_id", s.VoterID, "key", key, "error", sendErr)
		r.React(ctx, reply.ChannelID, reply.Ts, "x")
		note := fmt.Sprintf("*Operator:* Your message was not delivered to the voter: %s", sendErr)
		if err := r.Note(ctx, reply.ChannelID, reply.ThreadTs, note); err != nil {
			slog.Error("failed to post delivery failure note", "key", key, "error", err)
		}
		return Failed, nil
	}
	return Sent, nil
}

// DeliveryStatus applies a gateway status callback to the matching row.
func (r *Relay) DeliveryStatus(ctx context.Context, sid, status string) error {
	channelID, threadTs, found, err := r.log.UpdateDeliveryStatus(ctx, sid, status)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if !found {
		slog.Warn("status callback for unknown message", "sid", sid, "status", status)
		return nil
	}
	slog.Debug("delivery status updated", "sid", sid, "status", status, "channel", channelID, "thread_ts", threadTs)
	return nil
}
