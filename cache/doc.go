// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cache holds the helpline's fast, non-authoritative state.

# Store

Store is a small hash-oriented key-value interface with two
implementations:

  - RedisStore: go-redis client, used in production
  - MemoryStore: mutex-guarded maps, used in tests and local runs

# Keys

	<voterId>:<gatewayPhone>        session hash
	<channelId>:<threadTs>          thread -> voter reverse lookup
	slackPodChannelIds              channel name -> id directory
	slackBlockedUserPhoneNumbers    outbound block list
	twilioBlockedUserPhoneNumbers   inbound block list

# Sessions

EncodeSession / DecodeSession convert between models.SessionState and the
flat hash; Sessions wraps a Store with typed accessors for every key above.
Losing the cache loses routing shortcuts, never history: the durable log in
package db is the system of record.
*/
package cache
