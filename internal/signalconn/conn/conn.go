// Package conn implements the per-connection signaling state machine
// of spec.md §3–§5: the core component this module exists to provide.
// It is a direct Go port of the control flow in
// original_source/src/econn/econn.c, carrying forward that file's
// state transitions, glare resolution, and timer-driven failure
// semantics, adapted to the teacher repo's idiom for a
// mutex-guarded, callback-driven connection object
// (internal/signaling/dialog/dialog.go,
// services/signaling/b2bua/leg_impl.go).
package conn

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/randutil"

	"github.com/halvorsen/signalconn/internal/signalconn/logging"
	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/sigtimer"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
	"github.com/halvorsen/signalconn/internal/signalconn/transport"
)

// sessidAlphabet is the character set sessid_local is drawn from
// (spec.md §3: "5 chars from a base alphabet").
var sessidAlphabet = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

const sessidLength = 5

// Conn is one peer-to-peer signaling connection (spec.md §3). The
// zero value is not usable; construct with New.
type Conn struct {
	mu sync.Mutex

	id string // correlation id for logging, not part of the wire protocol

	useridSelf     string
	clientidSelf   string
	clientidRemote string

	sessidLocal  string
	sessidRemote string

	st       state.State
	dir      state.Direction
	conflict state.Conflict

	setupErr   error
	pendingErr error

	conf transport.Conf

	timer sigtimer.Timer

	sender   transport.Sender
	handlers transport.Handlers

	closeFired bool // latches OnClose to fire at most once (spec.md §3 invariant 6)
}

// New allocates a connection for the given local identity. userIDSelf
// and clientIDSelf must be non-empty (spec.md §3). An unset (zero
// value) conf defaults to spec.md §3's 30s/5s, matching the reference
// implementation's econn_alloc defaulting only when the caller passes
// no conf at all. A caller-supplied conf is otherwise taken as given,
// including an explicit TimeoutSetup of 0: that value is preserved so
// Start and UpdateReq's own zero checks (spec.md:249) can reject it.
func New(userIDSelf, clientIDSelf string, conf transport.Conf, sender transport.Sender, handlers transport.Handlers) (*Conn, error) {
	if userIDSelf == "" || clientIDSelf == "" {
		return nil, signalerr.ErrInvalid
	}

	if conf == (transport.Conf{}) {
		conf = transport.DefaultConf()
	}

	sessid, err := randutil.GenerateCryptoRandomString(sessidLength, sessidAlphabet)
	if err != nil {
		return nil, fmt.Errorf("signalconn: generate sessid: %w", err)
	}

	c := &Conn{
		id:           uuid.New().String(),
		useridSelf:   userIDSelf,
		clientidSelf: clientIDSelf,
		sessidLocal:  sessid,
		st:           state.Idle,
		dir:          state.DirUnknown,
		conf:         conf,
		sender:       sender,
		handlers:     handlers,
	}
	return c, nil
}

// ID returns the connection's log-correlation identifier. It is not
// sent on the wire.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() state.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Direction returns whether this connection was locally originated or
// accepted.
func (c *Conn) Direction() state.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// ClientIDRemote returns the bound remote client id, or "" if no
// inbound message has bound one yet.
func (c *Conn) ClientIDRemote() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientidRemote
}

// SessidLocal returns this connection's locally generated session id.
func (c *Conn) SessidLocal() string {
	return c.sessidLocal // immutable after New, safe unlocked
}

// SessidRemote returns the peer's session id, or "" if not yet bound.
func (c *Conn) SessidRemote() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessidRemote
}

// setState transitions the state machine, logging the change the way
// the C reference's econn_set_state does.
func (c *Conn) setState(next state.State) {
	prev := c.st
	c.st = next
	logging.Debug("signalconn: state change", "conn", c.id, "from", prev.String(), "to", next.String())
}

// send encodes and transports msg, wrapping a nil sender as
// ErrUnsupported.
func (c *Conn) send(msg *message.Message) error {
	if c.sender == nil {
		return signalerr.ErrUnsupported
	}
	return c.sender.Send(c, msg)
}

// Debug renders the connection's state the way spec.md §6 requires:
// state+direction, clientid_remote, sessid_local|sessid_remote, timer
// remaining seconds, setup error, and glare outcome. Mirrors the
// C reference's econn_debug block structure.
func (c *Conn) Debug(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "~~~~~ conn <%s> ~~~~~\n", c.id)
	fmt.Fprintf(&b, "state:            %s", c.st)
	if c.dir != state.DirUnknown {
		fmt.Fprintf(&b, "  (%s)", c.dir)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "clientid_remote:  %s\n", c.clientidRemote)
	fmt.Fprintf(&b, "session:          %s|%s\n", c.sessidLocal, c.sessidRemote)

	if c.timer.IsRunning() {
		fmt.Fprintf(&b, "timer_local:      %.0f seconds\n", c.timer.Remaining().Seconds())
	} else {
		b.WriteString("timer_local:      (not running)\n")
	}

	if c.setupErr != nil {
		fmt.Fprintf(&b, "setup_error:      %q\n", c.setupErr.Error())
	}
	fmt.Fprintf(&b, "conflict:         %s\n", c.conflict)

	io.WriteString(w, b.String())
}

// propsSnapshot copies p for retention beyond the caller's stack
// frame; callers of intent operations borrow their props argument for
// the duration of the call only (spec.md §5).
func propsSnapshot(p *props.Props) *props.Props {
	if p == nil {
		return nil
	}
	cp := props.New()
	p.ForEach(func(k, v string) bool {
		cp.Add(k, v)
		return true
	})
	return cp
}
