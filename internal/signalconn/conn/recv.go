package conn

import (
	"strings"

	"github.com/halvorsen/signalconn/internal/signalconn/logging"
	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
)

// Recv is the single inbound dispatch entry point (spec.md §4.D). It
// applies the two common pre-filters (spec.md §3 invariants 4 and 5)
// before dispatching on msg.Kind. Notification callbacks and the
// close handler are invoked only after c.mu is released, so that an
// application re-entering the connection from inside a callback never
// deadlocks (spec.md §5).
func (c *Conn) Recv(useridSender, clientidSender string, msg *message.Message) {
	if msg == nil {
		return
	}

	c.mu.Lock()

	if c.st == state.Terminating {
		c.mu.Unlock()
		return
	}

	if c.clientidRemote != "" && !strings.EqualFold(c.clientidRemote, clientidSender) {
		c.mu.Unlock()
		logging.Debug("signalconn: dropping message from unbound clientid", "conn", c.id, "sender", clientidSender)
		return
	}

	if c.sessidRemote != "" && msg.Kind != state.KindSetup && msg.Kind != state.KindPropsync {
		if msg.SessidSender != c.sessidRemote {
			c.mu.Unlock()
			logging.Debug("signalconn: dropping message with mismatched sessid", "conn", c.id, "kind", msg.Kind.String())
			return
		}
	}

	var notify func()
	switch msg.Kind {
	case state.KindSetup:
		if msg.IsRequest() {
			notify = c.handleSetupRequestLocked(useridSender, clientidSender, msg)
		} else {
			notify = c.handleSetupResponseLocked(clientidSender, msg)
		}
	case state.KindUpdate:
		if msg.IsRequest() {
			notify = c.handleUpdateRequestLocked(useridSender, clientidSender, msg)
		} else {
			notify = c.handleUpdateResponseLocked(msg)
		}
	case state.KindCancel:
		notify = c.handleCancelLocked()
	case state.KindHangup:
		notify = c.handleHangupLocked(msg)
	default:
		// Unknown kinds, and PROPSYNC (spec.md §4.D enumerates no
		// inbound handling for propsync -- there is no notification
		// hook for it in the five-member callback surface of §6), are
		// logged with no state change.
		logging.Debug("signalconn: ignoring inbound message kind", "conn", c.id, "kind", msg.Kind.String())
	}

	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// handleSetupRequestLocked implements the SETUP request branch of
// spec.md §4.D, including glare resolution. Assumes c.mu held.
func (c *Conn) handleSetupRequestLocked(useridSender, clientidSender string, msg *message.Message) func() {
	switch c.st {
	case state.Idle:
		if c.clientidRemote == "" {
			c.clientidRemote = clientidSender
		}
		c.sessidRemote = msg.SessidSender
		c.dir = state.DirIncoming
		c.setState(state.PendingIncoming)
		c.armSetupTimer()

		handler := c.handlers.OnIncoming
		if handler == nil {
			return nil
		}
		msgTimeMs, ageMs, sdp, p := msg.Time.UnixMilli(), msg.Age.Milliseconds(), msg.SDP, msg.Props
		uid, cid := useridSender, clientidSender
		return func() { handler(msgTimeMs, uid, cid, ageMs, sdp, p) }

	case state.PendingOutgoing:
		// Glare: both sides sent SETUP requests concurrently. The
		// offer's sessid is always recorded regardless of outcome.
		c.sessidRemote = msg.SessidSender
		if c.clientidRemote == "" {
			c.clientidRemote = clientidSender
		}

		if isWinner(c.useridSelf, c.clientidSelf, useridSender, clientidSender) {
			c.conflict = state.ConflictWon
			logging.Debug("signalconn: glare won, dropping remote offer", "conn", c.id)
			return nil
		}

		c.conflict = state.ConflictLost
		c.setState(state.ConflictResolution)

		handler := c.handlers.OnAnswer
		if handler == nil {
			return nil
		}
		sdp, p := msg.SDP, msg.Props
		return func() { handler(true, sdp, p) }

	default:
		logging.Debug("signalconn: setup request ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}
}

// handleSetupResponseLocked implements the SETUP response branch of
// spec.md §4.D. Assumes c.mu held.
func (c *Conn) handleSetupResponseLocked(clientidSender string, msg *message.Message) func() {
	if c.st != state.PendingOutgoing && c.st != state.ConflictResolution {
		logging.Debug("signalconn: setup response ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}

	c.timer.Cancel()
	c.sessidRemote = msg.SessidSender
	if c.clientidRemote == "" {
		c.clientidRemote = clientidSender
	}
	c.setState(state.Answered)

	handler := c.handlers.OnAnswer
	if handler == nil {
		return nil
	}
	sdp, p := msg.SDP, msg.Props
	return func() { handler(false, sdp, p) }
}

// handleUpdateRequestLocked implements the UPDATE request branch of
// spec.md §4.D, including the UPDATE-phase glare rule of §9 Open
// Question 4 (conflict is left unmutated). Assumes c.mu held.
func (c *Conn) handleUpdateRequestLocked(useridSender, clientidSender string, msg *message.Message) func() {
	shouldReset := false

	switch c.st {
	case state.Answered, state.DatachanEstablished:
		c.setState(state.UpdateRecv)

	case state.UpdateSent:
		if isWinner(c.useridSelf, c.clientidSelf, useridSender, clientidSender) {
			logging.Debug("signalconn: update glare won, ignoring inbound request", "conn", c.id)
			return nil
		}
		c.setState(state.UpdateRecv)
		shouldReset = true

	default:
		logging.Debug("signalconn: update request ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}

	c.armSetupTimer()

	handler := c.handlers.OnUpdateReq
	if handler == nil {
		return nil
	}
	sdp, p := msg.SDP, msg.Props
	uid, cid, reset := useridSender, clientidSender, shouldReset
	return func() { handler(uid, cid, sdp, p, reset) }
}

// handleUpdateResponseLocked implements the UPDATE response branch of
// spec.md §4.D. Assumes c.mu held.
func (c *Conn) handleUpdateResponseLocked(msg *message.Message) func() {
	if c.st != state.UpdateSent {
		logging.Debug("signalconn: update response ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}

	c.timer.Cancel()
	c.setState(state.Answered)

	handler := c.handlers.OnUpdateResp
	if handler == nil {
		return nil
	}
	sdp, p := msg.SDP, msg.Props
	return func() { handler(sdp, p) }
}

// handleCancelLocked implements the CANCEL branch of spec.md §4.D.
// Assumes c.mu held.
func (c *Conn) handleCancelLocked() func() {
	if c.st != state.PendingIncoming && c.st != state.Answered && c.st != state.DatachanEstablished {
		logging.Debug("signalconn: cancel ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}
	return c.closeMutateLocked(signalerr.ErrCancelled)
}

// handleHangupLocked implements the HANGUP branch of spec.md §4.D.
// Assumes c.mu held.
func (c *Conn) handleHangupLocked(msg *message.Message) func() {
	if c.st != state.DatachanEstablished && c.st != state.HangupSent {
		logging.Debug("signalconn: hangup ignored in state", "conn", c.id, "state", c.st.String())
		return nil
	}

	c.setState(state.HangupRecv)
	if msg.IsRequest() {
		_ = c.send(message.NewHangup(c.sessidLocal, true))
	}
	return c.closeMutateLocked(nil)
}
