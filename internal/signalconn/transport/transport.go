// Package transport defines the external collaborator contracts of
// spec.md §6: the opaque message transport a Conn sends through, and
// the application callback surface a Conn notifies.
package transport

import (
	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/props"
)

// Sender is the single operation a transport must provide: hand msg
// to the remote peer. It is invoked synchronously from within an
// intent operation; a non-nil error fails that operation and, for
// SETUP-family sends, drives the connection to TERMINATING
// (spec.md §6).
//
// conn is passed as an opaque identifier (its concrete type lives in
// the conn package, which imports this one) so a single Sender
// implementation can route outbound messages for many connections --
// mirroring the teacher's transport.Transport interface
// (services/signaling/transport/transport.go), which likewise takes
// a session/call identifier rather than assuming one transport per
// call.
type Sender interface {
	Send(conn any, msg *message.Message) error
}

// Handlers is the application's notification surface. Every field is
// optional; a nil field means "no notification" (spec.md §6). Fields
// are plain function values rather than an interface so an
// application can wire only the handlers it needs, the same shape as
// the teacher's Leg.OnStateChange/OnTerminated callback registration
// (internal/signaling/b2bua/leg.go) generalized to a fixed struct of
// named hooks instead of a dynamic registry, since spec.md §4 defines
// a fixed, closed set of five notifications.
type Handlers struct {
	// OnIncoming fires when a SETUP request establishes a new
	// incoming connection.
	OnIncoming func(msgTime int64, useridSender, clientidSender string, age int64, sdp string, p *props.Props)

	// OnAnswer fires when a SETUP response is accepted, or when a
	// glare loss forces a new answer (reset=true).
	OnAnswer func(reset bool, sdp string, p *props.Props)

	// OnUpdateReq fires when an UPDATE request is accepted.
	// shouldReset is true when this UPDATE arrived as the losing side
	// of an UPDATE-phase glare.
	OnUpdateReq func(useridSender, clientidSender string, sdp string, p *props.Props, shouldReset bool)

	// OnUpdateResp fires when an UPDATE response is accepted.
	OnUpdateResp func(sdp string, p *props.Props)

	// OnClose fires at most once per connection, when the connection
	// reaches TERMINATING asynchronously (spec.md §3 invariant 6). A
	// failed send inside an intent operation moves the connection to
	// TERMINATING without firing it.
	OnClose func(err error)
}

// Conf configures the setup and termination timeouts (spec.md §3).
// An all-zero Conf passed to conn.New is replaced by DefaultConf. A
// TimeoutSetup of 0 alongside a non-zero TimeoutTerm is kept as given:
// Start and UpdateReq then fail with ErrProtocol, and no setup timer
// is ever armed.
type Conf struct {
	TimeoutSetup int64 // milliseconds
	TimeoutTerm  int64 // milliseconds
}

// DefaultConf returns the spec.md §3 defaults: 30s setup, 5s term.
func DefaultConf() Conf {
	return Conf{TimeoutSetup: 30000, TimeoutTerm: 5000}
}
