// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package migration opens, moves and closes voter threads.
//
// A migration closes the panel in the voter's current thread, opens a new
// thread with a fresh panel in the destination channel, replays the
// session's history into it and points the session and the thread index
// at the new thread. Each call creates a thread, so a failed migration is
// reported with ErrMigrationIncomplete instead of being retried.
package migration
