// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package slackapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/danielhkuo/helpline-router/relay"
)

// adminTTL bounds how long admin channel membership is reused.
const adminTTL = 5 * time.Minute

// Client is the Slack workspace behind relay.Chat.
type Client struct {
	api            *slack.Client
	adminChannelID string

	mu       sync.Mutex
	admins   map[string]bool
	adminsAt time.Time
	users    map[string]string
	now      func() time.Time
}

// New creates a client for the bot token. Members of adminChannelID may run
// operator commands.
func New(token, adminChannelID string, opts ...slack.Option) *Client {
	return &Client{
		api:            slack.New(token, opts...),
		adminChannelID: adminChannelID,
		users:          map[string]string{},
		now:            time.Now,
	}
}

var _ relay.Chat = (*Client)(nil)

func msgOptions(msg relay.ChatMessage) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}
	if msg.ThreadTs != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTs))
	}
	return opts
}

func (c *Client) PostMessage(ctx context.Context, channel string, msg relay.ChatMessage) (string, string, error) {
	channelID, ts, err := c.api.PostMessageContext(ctx, channel, msgOptions(msg)...)
	if err != nil {
		return "", "", fmt.Errorf("post to %s: %w", channel, err)
	}
	return channelID, ts, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts string, msg relay.ChatMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, opts...); err != nil {
		return fmt.Errorf("update %s/%s: %w", channelID, ts, err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, ts, name string) error {
	if err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts)); err != nil {
		return fmt.Errorf("react %s on %s/%s: %w", name, channelID, ts, err)
	}
	return nil
}

func (c *Client) Permalink(ctx context.Context, channelID, ts string) (string, error) {
	link, err := c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{Channel: channelID, Ts: ts})
	if err != nil {
		return "", fmt.Errorf("permalink %s/%s: %w", channelID, ts, err)
	}
	return link, nil
}

// ChannelDirectory pages through every unarchived channel the bot can see.
func (c *Client) ChannelDirectory(ctx context.Context) (map[string]string, error) {
	dir := map[string]string{}
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           1000,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		for _, ch := range channels {
			dir[ch.Name] = ch.ID
		}
		if cursor == "" {
			return dir, nil
		}
		params.Cursor = cursor
	}
}

// UserName prefers the display name, then the real name. Names are cached
// for the life of the process.
func (c *Client) UserName(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	name, ok := c.users[userID]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("user info %s: %w", userID, err)
	}
	switch {
	case user.Profile.DisplayName != "":
		name = user.Profile.DisplayName
	case user.RealName != "":
		name = user.RealName
	default:
		name = user.Name
	}

	c.mu.Lock()
	c.users[userID] = name
	c.mu.Unlock()
	return name, nil
}

// IsAdmin reports whether the user is a member of the admin channel.
func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if c.adminChannelID == "" {
		return false, nil
	}

	c.mu.Lock()
	if c.admins != nil && c.now().Sub(c.adminsAt) < adminTTL {
		admin := c.admins[userID]
		c.mu.Unlock()
		return admin, nil
	}
	c.mu.Unlock()

	members := map[string]bool{}
	params := &slack.GetUsersInConversationParameters{ChannelID: c.adminChannelID, Limit: 1000}
	for {
		ids, cursor, err := c.api.GetUsersInConversationContext(ctx, params)
		if err != nil {
			return false, fmt.Errorf("admin channel members: %w", err)
		}
		for _, id := range ids {
			members[id] = true
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	c.mu.Lock()
	c.admins = members
	c.adminsAt = c.now()
	c.mu.Unlock()
	return members[userID], nil
}
