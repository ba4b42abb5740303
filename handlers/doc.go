// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the helpline.

# Handler Types

Each handler is a struct with config and the narrow interfaces it needs:

  - TwilioHandler: inbound texts (PULL and PUSH numbers) and delivery callbacks
  - SlackHandler: Events API and interactivity webhooks
  - PushHandler: paced outreach texts
  - AdminHandler: channel weights and reporting

	twilioHandler := handlers.NewTwilioHandler(cfg, machine, relay)

# Webhooks

Twilio requests are checked against X-Twilio-Signature over the public URL
of the endpoint. Inbound texts run the voter state machine before the
webhook is answered with empty TwiML.

Slack requests are checked against the v0 signing secret. Slack expects an
answer within three seconds, so message events, app mentions and panel
clicks are enqueued on the dispatcher and acknowledged immediately. Bot
messages, message subtypes (edits, joins, hidden events) and redelivered
mentions are dropped here.

# Admin Operations

Admin endpoints require the X-Admin-Key header, derived per scope:

	push            POST /push
	channel-weights GET|POST /admin/channel-weights
	stats           GET /admin/stats

Keys come from auth.GenerateAdminKey(scope, ADMIN_KEY_SALT).
*/
package handlers
