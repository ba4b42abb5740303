// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package relay moves messages between voters' phones and volunteer
// threads.
//
// Every relayed message is written to the durable log. Inbound texts are
// keyed by the gateway's message sid and volunteer replies by the chat
// message id, so a redelivered webhook or event never produces a second
// text or a second thread post. Automated helpline texts are refused while
// a volunteer is engaged or the voter has opted out.
package relay
