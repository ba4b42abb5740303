// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	// sqlite's driver only runs the first statement of a multi-statement Exec
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

const schema = `
-- Messages
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    direction TEXT NOT NULL CHECK (direction IN ('INBOUND', 'OUTBOUND')),
    automated BOOLEAN NOT NULL DEFAULT FALSE,
    message TEXT NOT NULL DEFAULT '',
    unprocessed_message TEXT,
    user_id TEXT NOT NULL,
    user_phone_number TEXT NOT NULL,
    twilio_phone_number TEXT NOT NULL,
    entry_point TEXT,
    is_demo BOOLEAN NOT NULL DEFAULT FALSE,
    state_name TEXT,
    originating_slack_user_id TEXT,
    originating_slack_user_name TEXT,
    slack_channel TEXT,
    slack_parent_message_ts TEXT,
    slack_message_ts TEXT,
    twilio_message_sid TEXT,
    twilio_attachments TEXT,
    idempotency_key TEXT UNIQUE,
    slack_retry_num INTEGER,
    slack_retry_reason TEXT,
    twilio_receive_timestamp TIMESTAMP,
    twilio_send_timestamp TIMESTAMP,
    slack_receive_timestamp TIMESTAMP,
    slack_send_timestamp TIMESTAMP,
    slack_error TEXT,
    twilio_error TEXT,
    successfully_sent BOOLEAN,
    delivery_status TEXT,
    delivery_status_timestamp TIMESTAMP,
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_voter ON messages(user_id, twilio_phone_number);
CREATE INDEX IF NOT EXISTS idx_messages_sid ON messages(twilio_message_sid);

-- Threads
CREATE TABLE IF NOT EXISTS threads (
    slack_parent_message_ts TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    user_phone_number TEXT NOT NULL,
    twilio_phone_number TEXT NOT NULL,
    needs_attention BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    is_demo BOOLEAN NOT NULL DEFAULT FALSE,
    session_start_epoch BIGINT,
    session_end_at TIMESTAMP,
    history_ts TEXT,
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (slack_parent_message_ts, channel_id)
);

CREATE INDEX IF NOT EXISTS idx_threads_voter ON threads(user_id, twilio_phone_number);
CREATE INDEX IF NOT EXISTS idx_threads_channel ON threads(channel_id);

-- Voter status history
CREATE TABLE IF NOT EXISTS voter_status_updates (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    user_phone_number TEXT NOT NULL,
    twilio_phone_number TEXT NOT NULL,
    voter_status TEXT NOT NULL,
    originating_slack_user_id TEXT,
    originating_slack_user_name TEXT,
    is_demo BOOLEAN NOT NULL DEFAULT FALSE,
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_voter_status_voter ON voter_status_updates(user_id, twilio_phone_number);

-- Volunteer claims
CREATE TABLE IF NOT EXISTS volunteer_voter_claims (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    user_phone_number TEXT NOT NULL,
    twilio_phone_number TEXT NOT NULL,
    is_demo BOOLEAN NOT NULL DEFAULT FALSE,
    volunteer_slack_user_id TEXT,
    originating_slack_user_id TEXT,
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_voter ON volunteer_voter_claims(user_id, twilio_phone_number);

-- Admin commands
CREATE TABLE IF NOT EXISTS commands (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    twilio_phone_number TEXT,
    command TEXT NOT NULL,
    args TEXT,
    issued_by_slack_user_id TEXT,
    slack_channel TEXT,
    slack_message_ts TEXT,
    created_at TIMESTAMP NOT NULL
);

-- Load balancer weights
CREATE TABLE IF NOT EXISTS channel_weights (
    region TEXT NOT NULL,
    channel_type TEXT NOT NULL CHECK (channel_type IN ('NORMAL', 'DEMO')),
    entry_point TEXT NOT NULL CHECK (entry_point IN ('PULL', 'PUSH')),
    channel_name TEXT NOT NULL,
    weight INTEGER NOT NULL CHECK (weight >= 0),
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (region, channel_type, entry_point, channel_name)
)
`
