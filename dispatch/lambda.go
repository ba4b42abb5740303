// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// Invoker is the part of the Lambda API client the dispatcher uses.
type Invoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda ships each task to a worker function as an asynchronous
// invocation.
type Lambda struct {
	client   Invoker
	function string
}

func NewLambda(client Invoker, function string) *Lambda {
	return &Lambda{client: client, function: function}
}

// NewLambdaFromEnv builds a client from the default AWS credential chain.
func NewLambdaFromEnv(ctx context.Context, function string) (*Lambda, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewLambda(lambda.NewFromConfig(cfg), function), nil
}

func (d *Lambda) Enqueue(ctx context.Context, task string, args any) error {
	p, err := NewPayload(task, args)
	if err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	out, err := d.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(d.function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("invoke %s: %w", d.function, err)
	}
	slog.Info("background task invoked", "task", task, "task_id", p.ID, "status", out.StatusCode)
	return nil
}
