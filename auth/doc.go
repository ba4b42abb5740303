// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth derives voter identities and authenticates inbound requests.

# Voter IDs

VoterID hashes a phone number into the pseudonymous id used in cache keys,
log rows and chat panels:

	id := auth.VoterID("+15555550100") // 32 hex chars

Volunteers only ever see the first five characters.

# Admin Keys

Admin endpoints are protected with HMAC keys scoped per endpoint group:

	key := auth.GenerateAdminKey("channel-weights", cfg.AdminKeySalt)
	err := auth.ValidateAdminKey("channel-weights", r.Header.Get("X-Admin-Key"), cfg.AdminKeySalt)

# Webhook Signatures

  - VerifySlackRequest: Slack v0 HMAC-SHA256 signature with timestamp skew check
  - VerifyTwilioRequest: Twilio X-Twilio-Signature over URL + sorted form

Both return ErrInvalidSignature (wrapped) on mismatch.
*/
package auth
