package conn

import (
	"strings"
	"time"

	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
)

// cancelTickDuration is the 1ms self-tick End() schedules from
// PENDING_INCOMING/PENDING_OUTGOING/ANSWERED/CONFLICT_RESOLUTION to
// give an outgoing CANCEL a chance to flush before the close callback
// fires (spec.md §4.F).
const cancelTickDuration = time.Millisecond

// toDuration converts a millisecond count from transport.Conf to a
// time.Duration.
func toDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Close is the single asynchronous termination path (spec.md §4.E):
// timer expirations and inbound CANCEL/HANGUP reach it. It is safe to
// call concurrently with intent operations and with itself; the
// second and later calls on an already-TERMINATING connection are a
// no-op beyond the latch check, since on_close must fire at most once
// (spec.md §3 invariant 6).
func (c *Conn) Close(err error) {
	c.mu.Lock()
	notify := c.closeMutateLocked(err)
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// closeMutateLocked performs the state mutation of spec.md §4.E
// assuming c.mu is already held, and returns a closure that invokes
// the close handler -- or nil if the latch had already fired or no
// handler is registered. The closure must be called only after the
// caller releases c.mu, so that a handler re-entering the connection
// (spec.md §5's reentrancy rule) never deadlocks against its own
// call.
func (c *Conn) closeMutateLocked(err error) func() {
	if c.closeFired {
		return nil
	}

	c.timer.Cancel()
	c.setupErr = err

	if c.st == state.PendingOutgoing {
		_ = c.send(message.NewCancel(c.sessidLocal)) // best-effort
	}
	c.setState(state.Terminating)
	c.closeFired = true

	handler := c.handlers.OnClose
	if handler == nil {
		return nil
	}
	return func() { handler(err) }
}

// isWinner implements the glare comparator spec.md §9 leaves for
// implementers to define: the lexicographically larger of
// "userid|clientid" between the two sides wins. The comparator is a
// strict total order, so exactly one side wins for any pair of
// distinct identities; a self-comparison (which cannot occur between
// genuine peers) resolves to "loses", giving it a fixed value rather
// than an advantage.
func isWinner(selfUser, selfClient, peerUser, peerClient string) bool {
	self := selfUser + "|" + selfClient
	peer := peerUser + "|" + peerClient
	return strings.Compare(self, peer) > 0
}
