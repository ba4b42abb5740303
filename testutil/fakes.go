// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danielhkuo/helpline-router/relay"
)

var ErrChannelNotFound = errors.New("channel_not_found")

// Post is one message the fake chat received.
type Post struct {
	ChannelID string
	Ts        string
	Msg       relay.ChatMessage
}

type Update struct {
	ChannelID string
	Ts        string
	Msg       relay.ChatMessage
}

type Reaction struct {
	ChannelID string
	Ts        string
	Name      string
}

// FakeChat is an in-memory chat platform.
type FakeChat struct {
	mu        sync.Mutex
	Directory map[string]string // name -> id
	Users     map[string]string // id -> name
	Admins    map[string]bool
	Posts     []Post
	Updates   []Update
	Reactions []Reaction
	// PostErr fails posts to the named channel id.
	PostErr map[string]error
	seq     int
}

func NewFakeChat() *FakeChat {
	return &FakeChat{
		Directory: map[string]string{},
		Users:     map[string]string{},
		Admins:    map[string]bool{},
		PostErr:   map[string]error{},
	}
}

// AddChannel registers a channel and returns its id.
func (c *FakeChat) AddChannel(name, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Directory[name] = id
	return id
}

func (c *FakeChat) resolve(channel string) (string, bool) {
	if id, ok := c.Directory[channel]; ok {
		return id, true
	}
	for _, id := range c.Directory {
		if id == channel {
			return id, true
		}
	}
	return "", false
}

func (c *FakeChat) PostMessage(_ context.Context, channel string, msg relay.ChatMessage) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resolve(channel)
	if !ok {
		return "", "", ErrChannelNotFound
	}
	if err := c.PostErr[id]; err != nil {
		return "", "", err
	}
	c.seq++
	ts := fmt.Sprintf("1700000000.%06d", c.seq)
	c.Posts = append(c.Posts, Post{ChannelID: id, Ts: ts, Msg: msg})
	return id, ts, nil
}

func (c *FakeChat) UpdateMessage(_ context.Context, channelID, ts string, msg relay.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Updates = append(c.Updates, Update{ChannelID: channelID, Ts: ts, Msg: msg})
	return nil
}

func (c *FakeChat) AddReaction(_ context.Context, channelID, ts, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reactions = append(c.Reactions, Reaction{ChannelID: channelID, Ts: ts, Name: name})
	return nil
}

func (c *FakeChat) Permalink(_ context.Context, channelID, ts string) (string, error) {
	return "https://chat.example/archives/" + channelID + "/p" + strings.ReplaceAll(ts, ".", ""), nil
}

func (c *FakeChat) ChannelDirectory(context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.Directory))
	for k, v := range c.Directory {
		out[k] = v
	}
	return out, nil
}

func (c *FakeChat) UserName(_ context.Context, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.Users[userID]; ok {
		return name, nil
	}
	return userID, nil
}

func (c *FakeChat) IsAdmin(_ context.Context, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Admins[userID], nil
}

// Thread returns the texts posted into a thread, in order.
func (c *FakeChat) Thread(channelID, threadTs string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, p := range c.Posts {
		if p.ChannelID == channelID && p.Msg.ThreadTs == threadTs {
			out = append(out, p.Msg.Text)
		}
	}
	return out
}

// Parents returns top-level posts in a channel.
func (c *FakeChat) Parents(channelID string) []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Post
	for _, p := range c.Posts {
		if p.ChannelID == channelID && p.Msg.ThreadTs == "" {
			out = append(out, p)
		}
	}
	return out
}

// ReactionsOn lists reaction names added to one message.
func (c *FakeChat) ReactionsOn(channelID, ts string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.Reactions {
		if r.ChannelID == channelID && r.Ts == ts {
			out = append(out, r.Name)
		}
	}
	return out
}

// SentSMS is one text the fake gateway accepted.
type SentSMS struct {
	Body   string
	Params relay.SendParams
	Sid    string
}

// FakeSMS is an in-memory SMS gateway.
type FakeSMS struct {
	mu   sync.Mutex
	Sent []SentSMS
	Err  error
	seq  int
}

func NewFakeSMS() *FakeSMS {
	return &FakeSMS{}
}

func (s *FakeSMS) Send(_ context.Context, body string, p relay.SendParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.seq++
	sid := fmt.Sprintf("SM%032d", s.seq)
	s.Sent = append(s.Sent, SentSMS{Body: body, Params: p, Sid: sid})
	return sid, nil
}

// To returns the bodies texted to a number.
func (s *FakeSMS) To(number string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.Sent {
		if m.Params.To == number {
			out = append(out, m.Body)
		}
	}
	return out
}

// Enqueued is one task handed to the RecordingDispatcher.
type Enqueued struct {
	Task string
	Args json.RawMessage
}

// RecordingDispatcher records tasks without running them.
type RecordingDispatcher struct {
	mu    sync.Mutex
	Tasks []Enqueued
	Err   error
}

func (d *RecordingDispatcher) Enqueue(_ context.Context, task string, args any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	d.Tasks = append(d.Tasks, Enqueued{Task: task, Args: raw})
	return nil
}

func (d *RecordingDispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.Tasks))
	for i, t := range d.Tasks {
		out[i] = t.Task
	}
	return out
}
