package message

import (
	"encoding/json"
	"time"

	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
)

// wireMessage is the JSON shape of spec.md §4.A. Props is typed as
// *props.Props so the ordered-map (Un)MarshalJSON pair on props.Props
// applies automatically.
type wireMessage struct {
	Version string       `json:"version"`
	Type    string       `json:"type"`
	Sessid  string       `json:"sessid"`
	Resp    bool         `json:"resp"`
	SDP     string       `json:"sdp,omitempty"`
	Props   *props.Props `json:"props,omitempty"`
}

// Encode renders msg as the wire JSON form. Fails with ErrInvalid if
// msg is nil, with ErrBadMessage for an unknown Kind, and with
// ErrInvalid if a PROPSYNC message carries no Props (spec.md §4.A:
// "propsync without props fails INVALID").
func Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, signalerr.ErrInvalid
	}

	w := wireMessage{
		Version: ProtocolVersion,
		Type:    msg.Kind.String(),
		Sessid:  msg.SessidSender,
		Resp:    msg.Resp,
	}

	switch msg.Kind {
	case state.KindSetup, state.KindUpdate:
		w.SDP = msg.SDP
		w.Props = msg.Props

	case state.KindCancel, state.KindHangup:
		// no payload

	case state.KindPropsync:
		if msg.Props == nil {
			return nil, signalerr.ErrInvalid
		}
		w.Props = msg.Props

	default:
		return nil, signalerr.ErrBadMessage
	}

	return json.Marshal(w)
}

// Decode parses data into a Message. currTime and msgTime drive the
// Age computation: Age = max(0, currTime - msgTime). Decode enforces
// the fixed protocol version, rejects unknown or missing "type", and
// requires "sdp" for SETUP/UPDATE. Per spec.md §9 Open Question 2,
// this implementation rejects a missing "sessid" with ErrBadMessage
// rather than silently proceeding with an empty sender id, the safer
// of the two documented options.
func Decode(data []byte, currTime, msgTime time.Time) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &signalerr.DecodeError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}

	if w.Version == "" {
		return nil, &signalerr.DecodeError{Field: "version", Reason: "missing"}
	}
	if w.Version != ProtocolVersion {
		return nil, &signalerr.DecodeError{
			Field:  "version",
			Reason: "mismatch: us=" + ProtocolVersion + " msg=" + w.Version,
			Cause:  signalerr.ErrProtocol,
		}
	}

	if w.Type == "" {
		return nil, &signalerr.DecodeError{Field: "type", Reason: "missing"}
	}
	kind := state.ParseMsgKind(w.Type)
	if kind == state.KindUnknown {
		return nil, &signalerr.DecodeError{Field: "type", Reason: "unknown: " + w.Type}
	}

	if w.Sessid == "" {
		return nil, &signalerr.DecodeError{Field: "sessid", Reason: "missing"}
	}

	msg := &Message{
		Kind:         kind,
		SessidSender: w.Sessid,
		Resp:         w.Resp,
	}

	switch kind {
	case state.KindSetup, state.KindUpdate:
		if w.SDP == "" {
			return nil, &signalerr.DecodeError{Field: "sdp", Reason: "missing"}
		}
		msg.SDP = w.SDP
		msg.Props = w.Props // optional for both kinds

	case state.KindCancel, state.KindHangup:
		// no payload

	case state.KindPropsync:
		if w.Props == nil {
			return nil, &signalerr.DecodeError{Field: "props", Reason: "missing (mandatory for propsync)"}
		}
		msg.Props = w.Props
	}

	msg.Time = msgTime
	if msgTime.After(currTime) {
		msg.Age = 0
	} else {
		msg.Age = currTime.Sub(msgTime)
	}

	return msg, nil
}
