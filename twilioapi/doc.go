// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package twilioapi implements relay.SMS over the Twilio Messages API.
//
// Each send carries the relay's idempotency key in the
// I-Twilio-Idempotency-Token header, so a retried send is not delivered
// twice. Status callbacks are requested when a callback URL is configured.
package twilioapi
