// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/helpline-router/models"
)

// Log is the durable, append-mostly record of everything the helpline
// does. It is the system of record; the cache only mirrors it.
type Log interface {
	InsertMessage(ctx context.Context, entry *models.MessageLogEntry) (bool, error)
	UpdateMessageDelivery(ctx context.Context, id string, d Delivery) error
	UpdateDeliveryStatus(ctx context.Context, sid, status string) (channelID, threadTs string, found bool, err error)
	MessageHistory(ctx context.Context, voterID, gatewayPhone string, since time.Time) ([]models.HistoricalMessage, error)
	OldestSessionMessage(ctx context.Context, voterID, gatewayPhone string) (time.Time, bool, error)

	InsertThread(ctx context.Context, thread models.ThreadRecord) error
	ThreadNeedsAttention(ctx context.Context, channelID, threadTs string) (bool, error)
	SetThreadNeedsAttention(ctx context.Context, channelID, threadTs string, needsAttention bool) error
	SetThreadInactive(ctx context.Context, channelID, threadTs string) error
	SetThreadHistoryTs(ctx context.Context, channelID, threadTs, historyTs string) error
	SetSessionEnd(ctx context.Context, voterID, gatewayPhone string) error
	PastSessions(ctx context.Context, voterID, gatewayPhone string) ([]models.PastSession, error)

	LogVoterStatus(ctx context.Context, update models.VoterStatusUpdate) error
	LatestVoterStatus(ctx context.Context, voterID, gatewayPhone string) (models.VoterStatus, error)
	LatestNonBlockingStatus(ctx context.Context, voterID, gatewayPhone string) (models.VoterStatus, error)
	LogVolunteerClaim(ctx context.Context, claim models.VolunteerClaim) error
	CurrentVolunteer(ctx context.Context, voterID, gatewayPhone string) (string, error)
	LogCommand(ctx context.Context, cmd models.CommandRecord) error
	ArchiveDemoVoter(ctx context.Context, voterID, gatewayPhone string) error

	UnclaimedVoters(ctx context.Context, channelID string) ([]models.UnclaimedVoter, error)
	NeedsAttentionByChannel(ctx context.Context) ([]models.ChannelStat, error)
	NeedsAttentionByVolunteer(ctx context.Context) ([]models.VolunteerStat, error)

	ChannelWeights(ctx context.Context, region string, channelType models.ChannelType) ([]models.ChannelWeight, error)
	ReplaceChannelWeights(ctx context.Context, region string, channelType models.ChannelType, weights []models.ChannelWeight) error
}

// Delivery carries the outcome of sending a logged message. Empty fields
// leave the stored value unchanged.
type Delivery struct {
	SlackChannel         string
	SlackParentMessageTs string
	SlackMessageTs       string
	TwilioMessageSid     string
	SlackSendAt          *time.Time
	TwilioSendAt         *time.Time
	SlackError           string
	TwilioError          string
	SuccessfullySent     bool
}

// Store implements Log over database/sql. Queries stay within the SQL
// shared by PostgreSQL and SQLite; timestamps always come from Go.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// InsertMessage writes a message row. It reports false without error when
// a row with the same idempotency key already exists.
func (s *Store) InsertMessage(ctx context.Context, e *models.MessageLogEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var attachments interface{}
	if len(e.TwilioAttachments) > 0 {
		b, err := json.Marshal(e.TwilioAttachments)
		if err != nil {
			return false, fmt.Errorf("encode attachments: %w", err)
		}
		attachments = string(b)
	}
	var retryNum interface{}
	if e.SlackRetryNum > 0 {
		retryNum = e.SlackRetryNum
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, direction, automated, message, unprocessed_message,
			user_id, user_phone_number, twilio_phone_number, entry_point, is_demo, state_name,
			originating_slack_user_id, originating_slack_user_name,
			slack_channel, slack_parent_message_ts, slack_message_ts,
			twilio_message_sid, twilio_attachments, idempotency_key,
			slack_retry_num, slack_retry_reason,
			twilio_receive_timestamp, twilio_send_timestamp, slack_receive_timestamp, slack_send_timestamp,
			slack_error, twilio_error, successfully_sent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)
		ON CONFLICT (idempotency_key) DO NOTHING
	`,
		e.ID, e.Direction, e.Automated, e.Message, nullString(e.UnprocessedMessage),
		e.VoterID, e.VoterPhoneNumber, e.GatewayPhoneNumber, nullString(string(e.EntryPoint)), e.IsDemo, nullString(e.StateName),
		nullString(e.OriginatingSlackUser), nullString(e.SlackUserName),
		nullString(e.SlackChannel), nullString(e.SlackParentMessageTs), nullString(e.SlackMessageTs),
		nullString(e.TwilioMessageSid), attachments, nullString(e.IdempotencyKey),
		retryNum, nullString(e.SlackRetryReason),
		nullTime(e.TwilioReceiveAt), nullTime(e.TwilioSendAt), nullTime(e.SlackReceiveAt), nullTime(e.SlackSendAt),
		nullString(e.SlackError), nullString(e.TwilioError), e.SuccessfullySent, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	return n == 1, nil
}

func (s *Store) UpdateMessageDelivery(ctx context.Context, id string, d Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET
			slack_channel = COALESCE($2, slack_channel),
			slack_parent_message_ts = COALESCE($3, slack_parent_message_ts),
			slack_message_ts = COALESCE($4, slack_message_ts),
			twilio_message_sid = COALESCE($5, twilio_message_sid),
			slack_send_timestamp = COALESCE($6, slack_send_timestamp),
			twilio_send_timestamp = COALESCE($7, twilio_send_timestamp),
			slack_error = COALESCE($8, slack_error),
			twilio_error = COALESCE($9, twilio_error),
			successfully_sent = $10
		WHERE id = $1
	`, id,
		nullString(d.SlackChannel), nullString(d.SlackParentMessageTs), nullString(d.SlackMessageTs),
		nullString(d.TwilioMessageSid), nullTime(d.SlackSendAt), nullTime(d.TwilioSendAt),
		nullString(d.SlackError), nullString(d.TwilioError), d.SuccessfullySent,
	)
	if err != nil {
		return fmt.Errorf("update message delivery: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus records a gateway status callback on the row with
// the given sid and returns the thread the message was sent from.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, sid, status string) (string, string, bool, error) {
	var channel, threadTs sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE messages SET delivery_status = $1, delivery_status_timestamp = $2
		WHERE twilio_message_sid = $3
		RETURNING slack_channel, slack_parent_message_ts
	`, status, s.now(), sid).Scan(&channel, &threadTs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("update delivery status: %w", err)
	}
	return channel.String, threadTs.String, true, nil
}

func (s *Store) MessageHistory(ctx context.Context, voterID, gatewayPhone string, since time.Time) ([]models.HistoricalMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, automated, message, originating_slack_user_name, twilio_attachments, created_at
		FROM messages
		WHERE user_id = $1 AND twilio_phone_number = $2 AND created_at >= $3
			AND archived = FALSE AND successfully_sent IS NOT FALSE
		ORDER BY created_at
	`, voterID, gatewayPhone, since)
	if err != nil {
		return nil, fmt.Errorf("query message history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoricalMessage
	for rows.Next() {
		var m models.HistoricalMessage
		var userName, attachments sql.NullString
		if err := rows.Scan(&m.Direction, &m.Automated, &m.Message, &userName, &attachments, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message history: %w", err)
		}
		m.SlackUserName = userName.String
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &m.TwilioAttachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// OldestSessionMessage finds the first message after the voter's most
// recent session end.
func (s *Store) OldestSessionMessage(ctx context.Context, voterID, gatewayPhone string) (time.Time, bool, error) {
	var lastEnd time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT session_end_at FROM threads
		WHERE user_id = $1 AND twilio_phone_number = $2 AND session_end_at IS NOT NULL
		ORDER BY session_end_at DESC LIMIT 1
	`, voterID, gatewayPhone).Scan(&lastEnd)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("query last session end: %w", err)
	}

	var oldest time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		WHERE user_id = $1 AND twilio_phone_number = $2 AND created_at > $3 AND archived = FALSE
		ORDER BY created_at LIMIT 1
	`, voterID, gatewayPhone, lastEnd).Scan(&oldest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query oldest session message: %w", err)
	}
	return oldest, true, nil
}

func (s *Store) InsertThread(ctx context.Context, t models.ThreadRecord) error {
	var start interface{}
	if t.SessionStartEpoch != 0 {
		start = t.SessionStartEpoch
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (
			slack_parent_message_ts, channel_id, user_id, user_phone_number, twilio_phone_number,
			needs_attention, active, is_demo, session_start_epoch, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9)
		ON CONFLICT (slack_parent_message_ts, channel_id) DO NOTHING
	`, t.ThreadTs, t.ChannelID, t.VoterID, t.VoterPhoneNumber, t.GatewayPhoneNumber,
		t.NeedsAttention, t.IsDemo, start, s.now())
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *Store) ThreadNeedsAttention(ctx context.Context, channelID, threadTs string) (bool, error) {
	var needs bool
	err := s.db.QueryRowContext(ctx, `
		SELECT needs_attention FROM threads WHERE slack_parent_message_ts = $1 AND channel_id = $2
	`, threadTs, channelID).Scan(&needs)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query needs attention: %w", err)
	}
	return needs, nil
}

func (s *Store) SetThreadNeedsAttention(ctx context.Context, channelID, threadTs string, needsAttention bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET needs_attention = $1, updated_at = $2
		WHERE slack_parent_message_ts = $3 AND channel_id = $4
	`, needsAttention, s.now(), threadTs, channelID)
	if err != nil {
		return fmt.Errorf("set needs attention: %w", err)
	}
	return nil
}

func (s *Store) SetThreadInactive(ctx context.Context, channelID, threadTs string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET active = FALSE, needs_attention = FALSE, updated_at = $1
		WHERE slack_parent_message_ts = $2 AND channel_id = $3
	`, s.now(), threadTs, channelID)
	if err != nil {
		return fmt.Errorf("set thread inactive: %w", err)
	}
	return nil
}

func (s *Store) SetThreadHistoryTs(ctx context.Context, channelID, threadTs, historyTs string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET history_ts = $1 WHERE slack_parent_message_ts = $2 AND channel_id = $3
	`, historyTs, threadTs, channelID)
	if err != nil {
		return fmt.Errorf("set history ts: %w", err)
	}
	return nil
}

// SetSessionEnd closes every open thread of the voter's current session.
func (s *Store) SetSessionEnd(ctx context.Context, voterID, gatewayPhone string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET session_end_at = $1, active = FALSE, needs_attention = FALSE, updated_at = $1
		WHERE user_id = $2 AND twilio_phone_number = $3 AND session_end_at IS NULL
	`, now, voterID, gatewayPhone)
	if err != nil {
		return fmt.Errorf("set session end: %w", err)
	}
	return nil
}

// PastSessions returns one entry per ended session: the thread the voter
// was last active in.
func (s *Store) PastSessions(ctx context.Context, voterID, gatewayPhone string) ([]models.PastSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, slack_parent_message_ts, history_ts, session_start_epoch, session_end_at, updated_at
		FROM threads
		WHERE user_id = $1 AND twilio_phone_number = $2 AND session_end_at IS NOT NULL AND archived = FALSE
		ORDER BY session_end_at, updated_at
	`, voterID, gatewayPhone)
	if err != nil {
		return nil, fmt.Errorf("query past sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.PastSession
	for rows.Next() {
		var p models.PastSession
		var historyTs sql.NullString
		var start sql.NullInt64
		if err := rows.Scan(&p.ChannelID, &p.ThreadTs, &historyTs, &start, &p.SessionEndAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan past session: %w", err)
		}
		p.HistoryTs = historyTs.String
		p.SessionStartEpoch = start.Int64
		// Threads of one session share an end time; keep the latest thread.
		if n := len(sessions); n > 0 && sessions[n-1].SessionEndAt.Equal(p.SessionEndAt) {
			sessions[n-1] = p
			continue
		}
		sessions = append(sessions, p)
	}
	return sessions, rows.Err()
}

func (s *Store) LogVoterStatus(ctx context.Context, u models.VoterStatusUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voter_status_updates (
			id, user_id, user_phone_number, twilio_phone_number, voter_status,
			originating_slack_user_id, originating_slack_user_name, is_demo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), u.VoterID, u.VoterPhoneNumber, u.GatewayPhoneNumber, string(u.Status),
		nullString(u.OriginatingUserID), nullString(u.OriginatingUser), u.IsDemo, s.now())
	if err != nil {
		return fmt.Errorf("log voter status: %w", err)
	}
	return nil
}

func (s *Store) latestStatus(ctx context.Context, query, voterID, gatewayPhone string) (models.VoterStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, query, voterID, gatewayPhone).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoterStatusUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("query voter status: %w", err)
	}
	return models.VoterStatus(status), nil
}

func (s *Store) LatestVoterStatus(ctx context.Context, voterID, gatewayPhone string) (models.VoterStatus, error) {
	return s.latestStatus(ctx, `
		SELECT voter_status FROM voter_status_updates
		WHERE user_id = $1 AND twilio_phone_number = $2 AND archived = FALSE
		ORDER BY created_at DESC LIMIT 1
	`, voterID, gatewayPhone)
}

// LatestNonBlockingStatus is the status an UNDO restores.
func (s *Store) LatestNonBlockingStatus(ctx context.Context, voterID, gatewayPhone string) (models.VoterStatus, error) {
	return s.latestStatus(ctx, `
		SELECT voter_status FROM voter_status_updates
		WHERE user_id = $1 AND twilio_phone_number = $2 AND archived = FALSE
			AND voter_status NOT IN ('REFUSED', 'SPAM')
		ORDER BY created_at DESC LIMIT 1
	`, voterID, gatewayPhone)
}

func (s *Store) LogVolunteerClaim(ctx context.Context, c models.VolunteerClaim) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volunteer_voter_claims (
			id, user_id, user_phone_number, twilio_phone_number, is_demo,
			volunteer_slack_user_id, originating_slack_user_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), c.VoterID, c.VoterPhoneNumber, c.GatewayPhoneNumber, c.IsDemo,
		nullString(c.VolunteerID), nullString(c.ClaimedByID), s.now())
	if err != nil {
		return fmt.Errorf("log volunteer claim: %w", err)
	}
	return nil
}

// CurrentVolunteer returns "" when nobody has claimed the voter.
func (s *Store) CurrentVolunteer(ctx context.Context, voterID, gatewayPhone string) (string, error) {
	var volunteer sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT volunteer_slack_user_id FROM volunteer_voter_claims
		WHERE user_id = $1 AND twilio_phone_number = $2 AND archived = FALSE
		ORDER BY created_at DESC LIMIT 1
	`, voterID, gatewayPhone).Scan(&volunteer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query volunteer: %w", err)
	}
	return volunteer.String, nil
}

func (s *Store) LogCommand(ctx context.Context, c models.CommandRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (
			id, user_id, twilio_phone_number, command, args,
			issued_by_slack_user_id, slack_channel, slack_message_ts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), nullString(c.VoterID), nullString(c.GatewayPhone), c.Command, nullString(c.Args),
		nullString(c.IssuedByUserID), nullString(c.ChannelID), nullString(c.MessageTs), s.now())
	if err != nil {
		return fmt.Errorf("log command: %w", err)
	}
	return nil
}

// ArchiveDemoVoter hides a demo voter's rows so the demo can be rerun.
func (s *Store) ArchiveDemoVoter(ctx context.Context, voterID, gatewayPhone string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "threads", "voter_status_updates", "volunteer_voter_claims"} {
		_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET archived = TRUE
			WHERE user_id = $1 AND twilio_phone_number = $2 AND is_demo = TRUE`, voterID, gatewayPhone)
		if err != nil {
			return fmt.Errorf("archive %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

const currentVolunteerSubquery = `COALESCE((
	SELECT c.volunteer_slack_user_id FROM volunteer_voter_claims c
	WHERE c.user_id = t.user_id AND c.twilio_phone_number = t.twilio_phone_number AND c.archived = FALSE
	ORDER BY c.created_at DESC LIMIT 1
), '')`

// UnclaimedVoters lists open threads with no volunteer. An empty channelID
// covers every channel.
func (s *Store) UnclaimedVoters(ctx context.Context, channelID string) ([]models.UnclaimedVoter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.user_id, t.channel_id, t.slack_parent_message_ts, t.updated_at, t.needs_attention
		FROM threads t
		WHERE t.active = TRUE AND t.archived = FALSE AND t.session_end_at IS NULL
			AND ($1 = '' OR t.channel_id = $1)
			AND `+currentVolunteerSubquery+` = ''
		ORDER BY t.updated_at
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query unclaimed voters: %w", err)
	}
	defer rows.Close()

	var out []models.UnclaimedVoter
	for rows.Next() {
		var u models.UnclaimedVoter
		if err := rows.Scan(&u.VoterID, &u.ChannelID, &u.ThreadTs, &u.LastUpdate, &u.NeedsAttention); err != nil {
			return nil, fmt.Errorf("scan unclaimed voter: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) NeedsAttentionByChannel(ctx context.Context) ([]models.ChannelStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, updated_at FROM threads
		WHERE needs_attention = TRUE AND active = TRUE AND archived = FALSE
	`)
	if err != nil {
		return nil, fmt.Errorf("query needs attention: %w", err)
	}
	defer rows.Close()

	byChannel := make(map[string]*models.ChannelStat)
	for rows.Next() {
		var channel string
		var updated time.Time
		if err := rows.Scan(&channel, &updated); err != nil {
			return nil, fmt.Errorf("scan needs attention: %w", err)
		}
		stat, ok := byChannel[channel]
		if !ok {
			stat = &models.ChannelStat{ChannelID: channel, OldestNeedingUpdate: updated}
			byChannel[channel] = stat
		}
		stat.Count++
		if updated.Before(stat.OldestNeedingUpdate) {
			stat.OldestNeedingUpdate = updated
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ChannelStat, 0, len(byChannel))
	for _, stat := range byChannel {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (s *Store) NeedsAttentionByVolunteer(ctx context.Context) ([]models.VolunteerStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+currentVolunteerSubquery+` AS volunteer, t.updated_at
		FROM threads t
		WHERE t.needs_attention = TRUE AND t.active = TRUE AND t.archived = FALSE
	`)
	if err != nil {
		return nil, fmt.Errorf("query needs attention by volunteer: %w", err)
	}
	defer rows.Close()

	byVolunteer := make(map[string]*models.VolunteerStat)
	for rows.Next() {
		var volunteer string
		var updated time.Time
		if err := rows.Scan(&volunteer, &updated); err != nil {
			return nil, fmt.Errorf("scan needs attention by volunteer: %w", err)
		}
		if volunteer == "" {
			continue
		}
		stat, ok := byVolunteer[volunteer]
		if !ok {
			stat = &models.VolunteerStat{VolunteerID: volunteer, Oldest: updated}
			byVolunteer[volunteer] = stat
		}
		stat.Count++
		if updated.Before(stat.Oldest) {
			stat.Oldest = updated
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.VolunteerStat, 0, len(byVolunteer))
	for _, stat := range byVolunteer {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VolunteerID < out[j].VolunteerID })
	return out, nil
}

func (s *Store) ChannelWeights(ctx context.Context, region string, channelType models.ChannelType) ([]models.ChannelWeight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_point, channel_name, weight FROM channel_weights
		WHERE region = $1 AND channel_type = $2
		ORDER BY entry_point, channel_name
	`, region, string(channelType))
	if err != nil {
		return nil, fmt.Errorf("query channel weights: %w", err)
	}
	defer rows.Close()

	var out []models.ChannelWeight
	for rows.Next() {
		w := models.ChannelWeight{Region: region, ChannelType: channelType}
		var entryPoint string
		if err := rows.Scan(&entryPoint, &w.ChannelName, &w.Weight); err != nil {
			return nil, fmt.Errorf("scan channel weight: %w", err)
		}
		w.EntryPoint = models.EntryPoint(entryPoint)
		out = append(out, w)
	}
	return out, rows.Err()
}

// ReplaceChannelWeights swaps the whole (region, type) partition.
func (s *Store) ReplaceChannelWeights(ctx context.Context, region string, channelType models.ChannelType, weights []models.ChannelWeight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin weights: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_weights WHERE region = $1 AND channel_type = $2`,
		region, string(channelType)); err != nil {
		return fmt.Errorf("clear weights: %w", err)
	}
	now := s.now()
	for _, w := range weights {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO channel_weights (region, channel_type, entry_point, channel_name, weight, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, region, string(channelType), string(w.EntryPoint), w.ChannelName, w.Weight, now)
		if err != nil {
			return fmt.Errorf("insert weight %s: %w", w.ChannelName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weights: %w", err)
	}
	return nil
}
