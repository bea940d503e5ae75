// Package sms abstracts the SMS gateway used to command GPS trackers
// over their SIM channel. Two gateways are supported: a directly
// attached GSM modem driven with AT commands, and a hosted HTTP
// gateway.
package sms

import (
	"context"
)

// Gateway sends outbound command messages and surfaces inbound device
// replies. Gateway latency and delivery failure are first-class
// outcomes for callers, not exceptions.
type Gateway interface {
	// Send delivers one outbound message to the given MSISDN.
	Send(ctx context.Context, to string, body string) error
	// AwaitReply blocks until a message from the given MSISDN arrives
	// or the context expires.
	AwaitReply(ctx context.Context, from string) (string, error)
	// Close releases the gateway's underlying transport.
	Close() error
}
