// Package message implements the wire message model and JSON codec
// for the signaling protocol: a fixed protocol version, five message
// kinds (SETUP, UPDATE, CANCEL, HANGUP, PROPSYNC), and the
// encode/decode pair that translates between them and the
// state.MsgKind-tagged Message struct (spec.md §4.A).
package message

import (
	"time"

	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
)

// ProtocolVersion is the single fixed wire protocol version this
// codec speaks. Decode rejects any other value with ErrProtocol.
const ProtocolVersion = "3.0"

// Message is a tagged variant over the five wire message kinds. Every
// message carries Kind, SessidSender, Resp, Time and Age; SDP and
// Props are populated depending on Kind (spec.md §3).
type Message struct {
	Kind         state.MsgKind
	SessidSender string
	Resp         bool

	// SDP is mandatory for SETUP/UPDATE, unused otherwise.
	SDP string

	// Props is optional for SETUP/UPDATE, mandatory for PROPSYNC,
	// unused for CANCEL/HANGUP.
	Props *props.Props

	// Time is the ingest timestamp supplied to Decode.
	Time time.Time

	// Age is max(0, curr_time - msg_time), computed by Decode.
	Age time.Duration
}

// IsRequest reports whether this message is a request (as opposed to
// a response to one), i.e. !Resp.
func (m *Message) IsRequest() bool {
	return !m.Resp
}

// NewSetup builds a SETUP/UPDATE message (update selects which).
func NewSetup(sessidSender string, update, resp bool, sdp string, p *props.Props) *Message {
	kind := state.KindSetup
	if update {
		kind = state.KindUpdate
	}
	return &Message{
		Kind:         kind,
		SessidSender: sessidSender,
		Resp:         resp,
		SDP:          sdp,
		Props:        p,
	}
}

// NewCancel builds a CANCEL message.
func NewCancel(sessidSender string) *Message {
	return &Message{Kind: state.KindCancel, SessidSender: sessidSender}
}

// NewHangup builds a HANGUP message.
func NewHangup(sessidSender string, resp bool) *Message {
	return &Message{Kind: state.KindHangup, SessidSender: sessidSender, Resp: resp}
}

// NewPropsync builds a PROPSYNC message. p must not be nil.
func NewPropsync(sessidSender string, resp bool, p *props.Props) *Message {
	return &Message{Kind: state.KindPropsync, SessidSender: sessidSender, Resp: resp, Props: p}
}
