// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the helpline.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(cfg, router.Services{...})

# Endpoints

Health:

	GET /health

SMS gateway (X-Twilio-Signature):

	POST /twilio-pull     - Texts to helpline numbers
	POST /twilio-push     - Replies to outreach numbers
	POST /twilio-callback - Delivery status updates

Chat platform (X-Slack-Signature):

	POST /slack               - Events API, including URL verification
	POST /slack-interactivity - Voter panel clicks

Admin (X-Admin-Key, one key per scope):

	POST /push                   - Paced outreach from a PUSH number
	GET  /admin/channel-weights  - Read a weight table partition
	POST /admin/channel-weights  - Replace a weight table partition
	GET  /admin/stats            - Unclaimed and needs-attention reports
*/
package router
