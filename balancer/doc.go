// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package balancer allocates voters to chat channels.

Weights live in the channel_weights table, partitioned by (region,
channel type), and are mirrored into the cache:

	channelWeights:<region>:<NORMAL|DEMO>   field <ENTRYPOINT>:<channel> = weight

SelectChannel draws from the voter's region, then from the "*" partition.
A channel is chosen with probability weight / total; zero-weight rows are
never chosen. Pick is the pure draw and takes an injectable Source so
tests can seed it.
*/
package balancer
