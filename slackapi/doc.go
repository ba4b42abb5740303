// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package slackapi implements relay.Chat over the Slack Web API.
//
// Admins are the members of the admin control room channel. Membership is
// cached for a few minutes; user names are cached for the process lifetime.
package slackapi
