package conn

import (
	"github.com/halvorsen/signalconn/internal/signalconn/logging"
	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
)

// Start originates an outgoing call (spec.md §4.C start). Legal from
// IDLE or PENDING_OUTGOING (a retransmit of the offer); any other
// state is refused with a *signalerr.StateError.
func (c *Conn) Start(sdp string, p *props.Props) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.Idle && c.st != state.PendingOutgoing {
		return &signalerr.StateError{Op: "start", State: c.st}
	}
	if c.conf.TimeoutSetup == 0 {
		return signalerr.ErrProtocol
	}
	if sdp == "" {
		return signalerr.ErrInvalid
	}

	c.dir = state.DirOutgoing
	c.setState(state.PendingOutgoing)

	msg := message.NewSetup(c.sessidLocal, false, false, sdp, propsSnapshot(p))
	if err := c.send(msg); err != nil {
		return c.failSetup(err)
	}

	c.armSetupTimer()
	return nil
}

// Answer accepts an incoming call or answers after losing a glare
// resolution (spec.md §4.C answer). The glare winner stays in
// PENDING_OUTGOING and is refused here.
func (c *Conn) Answer(sdp string, p *props.Props) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.PendingIncoming && c.st != state.ConflictResolution {
		return &signalerr.StateError{Op: "answer", State: c.st}
	}
	if sdp == "" {
		return signalerr.ErrInvalid
	}

	c.timer.Cancel()

	msg := message.NewSetup(c.sessidLocal, false, true, sdp, propsSnapshot(p))
	if err := c.send(msg); err != nil {
		return c.failSetup(err)
	}

	c.setState(state.Answered)
	return nil
}

// UpdateReq renegotiates an established call (spec.md §4.C
// update_req). Per the resolution of spec.md §9 Open Question 1, this
// rejects states outside {ANSWERED, DATACHAN_ESTABLISHED} rather than
// permitting them as the reference C implementation's dead default
// case does.
func (c *Conn) UpdateReq(sdp string, p *props.Props) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.Answered && c.st != state.DatachanEstablished {
		return &signalerr.StateError{Op: "update_req", State: c.st}
	}
	if c.conf.TimeoutSetup == 0 {
		return signalerr.ErrProtocol
	}
	if sdp == "" {
		return signalerr.ErrInvalid
	}

	c.setState(state.UpdateSent)

	msg := message.NewSetup(c.sessidLocal, true, false, sdp, propsSnapshot(p))
	if err := c.send(msg); err != nil {
		return c.failSetup(err)
	}

	c.armSetupTimer()
	return nil
}

// UpdateResp answers an inbound UPDATE request (spec.md §4.C
// update_resp). Legal only from UPDATE_RECV; the final transition is
// locked to ANSWERED per the resolution of §9 Open Question 3.
func (c *Conn) UpdateResp(sdp string, p *props.Props) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.UpdateRecv {
		return &signalerr.StateError{Op: "update_resp", State: c.st}
	}
	if sdp == "" {
		return signalerr.ErrInvalid
	}

	c.timer.Cancel()

	msg := message.NewSetup(c.sessidLocal, true, true, sdp, propsSnapshot(p))
	if err := c.send(msg); err != nil {
		return c.failSetup(err)
	}

	c.setState(state.Answered)
	return nil
}

// End closes the call from the application side (spec.md §4.C end).
// Unlike Close, End is synchronous on the wire send but schedules the
// actual close callback to fire asynchronously via a timer, exactly
// matching the reference implementation's cancel-tick.
func (c *Conn) End() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.st {
	case state.PendingIncoming:
		c.setState(state.Terminating)
		c.scheduleCancelTick()

	case state.PendingOutgoing, state.Answered, state.ConflictResolution:
		_ = c.send(message.NewCancel(c.sessidLocal)) // best-effort
		c.setState(state.Terminating)
		c.scheduleCancelTick()

	case state.DatachanEstablished:
		_ = c.send(message.NewHangup(c.sessidLocal, false))
		c.setState(state.HangupSent)
		c.armTermTimer()

	default:
		logging.Warn("signalconn: end() ignored in state", "conn", c.id, "state", c.st.String())
	}
}

// SetDatachanEstablished records that the data channel associated
// with an answered call has come up (spec.md §4.C
// set_datachan_established). Legal only from ANSWERED.
func (c *Conn) SetDatachanEstablished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.Answered {
		logging.Warn("signalconn: set_datachan_established illegal in state", "conn", c.id, "state", c.st.String())
		return
	}
	c.setState(state.DatachanEstablished)
}

// SendPropsync emits an out-of-band property sync (spec.md §4.C
// send_propsync). Legal only once the data channel is established.
func (c *Conn) SendPropsync(resp bool, p *props.Props) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != state.DatachanEstablished {
		return &signalerr.StateError{Op: "send_propsync", State: c.st}
	}
	if p == nil {
		return signalerr.ErrInvalid
	}

	return c.send(message.NewPropsync(c.sessidLocal, resp, propsSnapshot(p)))
}

// SetError stashes an error to surface on the next asynchronous close
// (spec.md §4.C set_error).
func (c *Conn) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingErr = err
}

// failSetup transitions to TERMINATING after a failed SETUP-family
// send, per spec.md §4.C / §6 ("for SETUP-family sends, transition to
// TERMINATING"). The close callback is not invoked here: it is
// reserved for async paths, so the caller only sees the returned
// error.
func (c *Conn) failSetup(sendErr error) error {
	c.setupErr = sendErr
	c.setState(state.Terminating)
	return sendErr
}

// armSetupTimer (re)starts the setup-phase timeout, firing Close with
// ErrTimedOut (spec.md §4.F). A TimeoutSetup of 0 arms no timer, so
// the inbound SETUP/UPDATE paths do not close the connection at once.
func (c *Conn) armSetupTimer() {
	if c.conf.TimeoutSetup == 0 {
		return
	}
	c.timer.Start(toDuration(c.conf.TimeoutSetup), func() {
		c.Close(signalerr.ErrTimedOut)
	})
}

// armTermTimer starts the termination-phase timeout entered after
// sending HANGUP, firing Close with the stashed pending_err (spec.md
// §4.F).
func (c *Conn) armTermTimer() {
	c.timer.Start(toDuration(c.conf.TimeoutTerm), func() {
		c.mu.Lock()
		err := c.pendingErr
		c.mu.Unlock()
		c.Close(err)
	})
}

// scheduleCancelTick arms the 1ms self-tick used by End() to give an
// outgoing CANCEL a chance to flush before closing (spec.md §4.F).
func (c *Conn) scheduleCancelTick() {
	c.timer.Start(cancelTickDuration, func() {
		c.mu.Lock()
		err := c.pendingErr
		c.mu.Unlock()
		c.Close(err)
	})
}
