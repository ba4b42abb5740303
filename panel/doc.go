// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package panel renders the voter panel posted as the parent message of
// every voter thread: voter summary, volunteer claim and status controls.
package panel
