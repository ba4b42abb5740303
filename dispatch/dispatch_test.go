// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
}

func TestRegistry_Run(t *testing.T) {
	reg := NewRegistry()
	var got echoArgs
	reg.Register("echo", func(_ context.Context, raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})

	p, err := NewPayload("echo", echoArgs{Channel: "C1", Ts: "1.0"})
	require.NoError(t, err)
	require.NoError(t, reg.Run(context.Background(), p))
	assert.Equal(t, echoArgs{Channel: "C1", Ts: "1.0"}, got)
	assert.NotEmpty(t, p.ID)

	err = reg.Run(context.Background(), Payload{TaskName: "missing"})
	assert.True(t, errors.Is(err, ErrUnknownTask))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	reg.Register("fail", func(context.Context, json.RawMessage) error { return boom })

	err := reg.Handler()(context.Background(), Payload{TaskName: "fail"})
	assert.True(t, errors.Is(err, boom))
}

func TestInProcess_Enqueue(t *testing.T) {
	reg := NewRegistry()
	var runs atomic.Int32
	reg.Register("count", func(context.Context, json.RawMessage) error {
		runs.Add(1)
		return nil
	})
	reg.Register("panic", func(context.Context, json.RawMessage) error {
		panic("task exploded")
	})
	d := NewInProcess(reg)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(ctx, "count", nil))
	}
	// Cancelling the request context must not cancel queued work.
	cancel()
	require.NoError(t, d.Enqueue(context.Background(), "panic", nil))
	d.Wait()

	assert.Equal(t, int32(5), runs.Load())

	err := d.Enqueue(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, ErrUnknownTask))
}

type fakeInvoker struct {
	input *lambda.InvokeInput
	err   error
}

func (f *fakeInvoker) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &lambda.InvokeOutput{StatusCode: 202}, nil
}

func TestLambda_Enqueue(t *testing.T) {
	inv := &fakeInvoker{}
	d := NewLambda(inv, "helpline-worker")

	require.NoError(t, d.Enqueue(context.Background(), "slackMessageEvent", echoArgs{Channel: "C1", Ts: "2.0"}))
	require.NotNil(t, inv.input)
	assert.Equal(t, "helpline-worker", *inv.input.FunctionName)
	assert.Equal(t, types.InvocationTypeEvent, inv.input.InvocationType)

	var p Payload
	require.NoError(t, json.Unmarshal(inv.input.Payload, &p))
	assert.Equal(t, "slackMessageEvent", p.TaskName)
	assert.JSONEq(t, `{"channel":"C1","ts":"2.0"}`, string(p.Args))

	inv.err = errors.New("throttled")
	assert.Error(t, d.Enqueue(context.Background(), "slackMessageEvent", nil))
}
