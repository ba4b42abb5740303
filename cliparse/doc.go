// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

Values come from, in order of precedence: CLI flags, the process
environment, then the optional dotenv file (-env-file, default .env).

# CLI Flags

	-mode               server (default) or worker
	-p                  Server port
	-d                  Database URL
	-t                  Database type (postgres or sqlite)
	-r                  Redis URL
	-admin-salt         Admin key salt
	-slack-token        Slack bot token
	-slack-secret       Slack signing secret
	-twilio-token       Twilio auth token
	-require-disclaimer true/false
	-demo-gateways      Demo gateway numbers
	-push-regions       number=Region pairs
	-push-interval      Outreach pacing (default 2s)

# Environment Variables

	PORT, RUN_MODE, DATABASE_URL, DATABASE_TYPE, REDISCLOUD_URL / REDIS_URL,
	ADMIN_KEY_SALT, SLACK_BOT_ACCESS_TOKEN, SLACK_SIGNING_SECRET,
	SLACK_BOT_USER_ID, ADMIN_CONTROL_ROOM_SLACK_CHANNEL_ID,
	TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_CALLBACK_URL,
	PUBLIC_BASE_URL, CLIENT_ORGANIZATION, REQUIRE_DISCLAIMER,
	DEMO_GATEWAY_NUMBERS, DEMO_VOTER_NUMBERS, PUSH_NUMBER_REGIONS,
	PUSH_INTERVAL, LAMBDA_BACKGROUND_TASK_FUNCTION, SENTRY_DSN,
	LOG_LEVEL, LOG_FORMAT

# Validation

ParseFlags returns an error if DATABASE_URL, ADMIN_KEY_SALT, the Slack
token and signing secret, or the Twilio credentials are missing.
*/
package cliparse
