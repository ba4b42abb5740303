// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/helpline-router/models"
)

// The sqlite backend runs the same SQL as production, so exercising it
// catches dialect drift without a Postgres server.
func TestStore_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, CreateSchema(conn))
	require.NoError(t, CreateSchema(conn), "schema creation is idempotent")

	store := NewStore(conn)

	entry := &models.MessageLogEntry{
		Direction:            models.DirectionOutbound,
		Message:              "hello",
		VoterID:              "abc",
		VoterPhoneNumber:     "+1",
		GatewayPhoneNumber:   "+2",
		SlackChannel:         "C1",
		SlackParentMessageTs: "1.0",
		SlackMessageTs:       "1.1",
		IdempotencyKey:       "chat:C1:1.1",
	}
	inserted, err := store.InsertMessage(ctx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *entry
	dup.ID = ""
	inserted, err = store.InsertMessage(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted, "same idempotency key is not logged twice")

	require.NoError(t, store.UpdateMessageDelivery(ctx, entry.ID, Delivery{TwilioMessageSid: "SM1", SuccessfullySent: true}))
	channel, threadTs, found, err := store.UpdateDeliveryStatus(ctx, "SM1", "delivered")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "C1", channel)
	assert.Equal(t, "1.0", threadTs)

	require.NoError(t, store.InsertThread(ctx, models.ThreadRecord{
		ThreadTs: "1.0", ChannelID: "C1", VoterID: "abc", VoterPhoneNumber: "+1", GatewayPhoneNumber: "+2",
		NeedsAttention: true,
	}))
	needs, err := store.ThreadNeedsAttention(ctx, "C1", "1.0")
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, store.SetThreadInactive(ctx, "C1", "1.0"))
	needs, err = store.ThreadNeedsAttention(ctx, "C1", "1.0")
	require.NoError(t, err)
	assert.False(t, needs)

	status, err := store.LatestVoterStatus(ctx, "abc", "+2")
	require.NoError(t, err)
	assert.Equal(t, models.VoterStatusUnknown, status)
}
