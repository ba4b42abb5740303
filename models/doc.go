// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain, request, and response types shared by the
helpline packages.

# Session

SessionState is the cached, typed projection of one voter's conversation
with one gateway number:

	key: <voterId>:<gatewayPhoneNumber>

Threads maps chat channel ids to the voter's thread in that channel; the
entry for ActiveChannelID is the thread all new messages flow into.

# Durable Rows

  - MessageLogEntry: one row per relayed or automated message
  - ThreadRecord: one row per chat thread
  - VoterStatusUpdate: panel status history
  - VolunteerClaim: volunteer assignment history
  - CommandRecord: audit trail of admin commands
  - ChannelWeight: load balancer weight table

# Constants

Entry points:

	EntryPointPull = "PULL"
	EntryPointPush = "PUSH"

Channel types:

	ChannelTypeNormal = "NORMAL"
	ChannelTypeDemo   = "DEMO"

Voter statuses run from UNKNOWN through VOTED; REFUSED and SPAM are
blocking statuses that stop all texts to the voter.
*/
package models
