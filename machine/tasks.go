// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielhkuo/helpline-router/dispatch"
	"github.com/danielhkuo/helpline-router/migration"
)

// Background task names
const (
	TaskChatMessage  = "slackMessageEvent"
	TaskInteraction  = "slackInteraction"
	TaskAdminMention = "slackAppMention"
)

func decode[T any](raw json.RawMessage, task string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s args: %w", task, err)
	}
	return v, nil
}

// RegisterTasks makes the machine's chat handlers runnable by a
// dispatcher.
func (m *Machine) RegisterTasks(r *dispatch.Registry) {
	r.Register(TaskChatMessage, func(ctx context.Context, raw json.RawMessage) error {
		ev, err := decode[ChatEvent](raw, TaskChatMessage)
		if err != nil {
			return err
		}
		return m.HandleChatMessage(ctx, ev)
	})
	r.Register(TaskInteraction, func(ctx context.Context, raw json.RawMessage) error {
		in, err := decode[Interaction](raw, TaskInteraction)
		if err != nil {
			return err
		}
		return m.HandleInteraction(ctx, in)
	})
	r.Register(TaskAdminMention, func(ctx context.Context, raw json.RawMessage) error {
		ev, err := decode[AdminMention](raw, TaskAdminMention)
		if err != nil {
			return err
		}
		return m.HandleAdminMention(ctx, ev)
	})
	r.Register(migration.TaskClosePanel, m.migrator.ClosePanelTask)
}
