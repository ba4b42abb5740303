// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the helpline router.

The helpline connects voters texting an SMS number with volunteers working
in Slack. Each voter gets a thread in a volunteer channel; texts and
replies are relayed between the two, and voters move between channels as
their region becomes known or an operator routes them.

# Starting the Server

	DATABASE_URL=postgres://... REDIS_URL=redis://... go run .

Or with flags:

	go run . -p 8080 -d "postgres://..." -r "redis://..."

# Run Modes

  - server (default): serves the webhooks and admin endpoints
  - worker: runs as an AWS Lambda handler for background tasks

With LAMBDA_BACKGROUND_TASK_FUNCTION set, the server hands chat events to
that function; otherwise they run on goroutines in the server.

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string (or SQLite file with -t sqlite)
  - ADMIN_KEY_SALT (--admin-salt): Secret for admin key HMAC
  - SLACK_BOT_ACCESS_TOKEN, SLACK_SIGNING_SECRET
  - TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN

Optional settings:

  - PORT (-p): Server port (default: 8080)
  - REDIS_URL (-r): Session cache (default: in memory)
  - PUBLIC_BASE_URL: used to check Twilio signatures
  - REQUIRE_DISCLAIMER, CLIENT_ORGANIZATION
  - DEMO_GATEWAY_NUMBERS, DEMO_VOTER_NUMBERS, PUSH_NUMBER_REGIONS, PUSH_INTERVAL
  - SLACK_BOT_USER_ID, ADMIN_CONTROL_ROOM_SLACK_CHANNEL_ID
  - SENTRY_DSN, LOG_LEVEL, LOG_FORMAT

# Architecture

  - machine: voter state machine and operator commands
  - relay: SMS and chat message relay with dedup
  - migration: channel migration and history replay
  - balancer: weighted channel selection
  - region: free-text region parsing
  - panel: voter panel blocks
  - cache: session cache (Redis or memory)
  - db: durable message and thread log
  - dispatch: background tasks (in process or Lambda)
  - slackapi, twilioapi: platform clients
  - handlers, router, middleware: HTTP surface
  - auth, cliparse, models: shared plumbing

See package documentation for each component.
*/
package main
