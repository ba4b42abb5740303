// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db is the helpline's durable log.

# Connecting

	conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL) // "postgres" or "sqlite"
	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}
	store := db.NewStore(conn)

CreateSchema is safe to call multiple times - uses IF NOT EXISTS for all
tables and indexes.

# Tables

  - messages: every inbound, relayed and automated message
  - threads: one row per chat thread (needs_attention, active, session end)
  - voter_status_updates: panel status history
  - volunteer_voter_claims: volunteer assignment history
  - commands: admin command audit trail
  - channel_weights: load balancer weights per (region, type)

# Idempotency

messages.idempotency_key is UNIQUE. InsertMessage uses
ON CONFLICT DO NOTHING and reports whether the row was new, which is how
webhook redeliveries are detected:

	sms:<gateway message sid>     inbound texts
	chat:<channel>:<message ts>   volunteer replies

# Dialect

Queries use the subset of SQL shared by PostgreSQL and SQLite. Timestamps
are always passed in from Go rather than computed by the database.
*/
package db
