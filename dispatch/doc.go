// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package dispatch runs webhook work after the webhook has been acknowledged.

Slack expects an answer within three seconds, so handlers validate the
request, enqueue a named task and return. Two Dispatcher implementations
exist and callers never branch on which one is configured:

	InProcess  runs the task on a goroutine, reporting errors and panics to Sentry
	Lambda     invokes LAMBDA_BACKGROUND_TASK_FUNCTION asynchronously (InvocationType Event)

Both encode the task as a Payload {id, taskName, args}. A process started in
worker mode serves Registry.Handler through aws-lambda-go.
*/
package dispatch
