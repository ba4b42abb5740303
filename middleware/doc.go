// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("POST /slack", middleware.WithLogging(slackHandler.Events))

Logs request start (request_id, method, path, remote) and completion
(status, duration_ms). The request id is taken from X-Request-Id or
generated, and echoed on the response.

# Panic Recovery

WithRecovery wraps the whole mux. A panicking handler answers 500 and the
panic is reported to Sentry on a per-request hub.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.PushRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
*/
package middleware
