package conn

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/state"
	"github.com/halvorsen/signalconn/internal/signalconn/transport"
)

// recordingSender captures every message a Conn sends through it, and
// optionally routes it straight to a peer Conn for round-trip tests.
type recordingSender struct {
	mu   sync.Mutex
	sent []*message.Message

	route func(msg *message.Message)
}

func (s *recordingSender) Send(_ any, msg *message.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	route := s.route
	s.mu.Unlock()
	if route != nil {
		route(msg)
	}
	return nil
}

func (s *recordingSender) last() *message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// failingSender always fails, for exercising failSetup paths.
type failingSender struct{ err error }

func (f failingSender) Send(any, *message.Message) error { return f.err }

// handlerSpy records every callback invocation.
type handlerSpy struct {
	mu sync.Mutex

	incoming   []string
	answer     []bool
	updateReq  []bool
	updateResp int
	closed     []error
	closeWG    sync.WaitGroup
}

func newHandlerSpy() *handlerSpy {
	h := &handlerSpy{}
	h.closeWG.Add(1)
	return h
}

func (h *handlerSpy) handlers() transport.Handlers {
	return transport.Handlers{
		OnIncoming: func(msgTime int64, useridSender, clientidSender string, age int64, sdp string, p *props.Props) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.incoming = append(h.incoming, sdp)
		},
		OnAnswer: func(reset bool, sdp string, p *props.Props) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.answer = append(h.answer, reset)
		},
		OnUpdateReq: func(useridSender, clientidSender, sdp string, p *props.Props, shouldReset bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.updateReq = append(h.updateReq, shouldReset)
		},
		OnUpdateResp: func(sdp string, p *props.Props) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.updateResp++
		},
		OnClose: func(err error) {
			h.mu.Lock()
			h.closed = append(h.closed, err)
			h.mu.Unlock()
			h.closeWG.Done()
		},
	}
}

func (h *handlerSpy) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closed)
}

func fastConf() transport.Conf {
	return transport.Conf{TimeoutSetup: 30000, TimeoutTerm: 5000}
}

func TestHappyOutgoingCall(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != state.PendingOutgoing {
		t.Fatalf("state = %v, want PENDING_OUTGOING", c.State())
	}
	sent := sender.last()
	if sent.Kind != state.KindSetup || sent.Resp || sent.SDP != "offer" {
		t.Fatalf("sent = %+v, want setup request with offer", sent)
	}

	c.Recv("bob", "phone2", message.NewSetup("REM", false, true, "answer", nil))
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}
	if got := spy.answer; len(got) != 1 || got[0] != false {
		t.Fatalf("OnAnswer calls = %v, want [false]", got)
	}
	if c.SessidRemote() != "REM" {
		t.Fatalf("SessidRemote = %q, want REM", c.SessidRemote())
	}

	c.SetDatachanEstablished()
	if c.State() != state.DatachanEstablished {
		t.Fatalf("state = %v, want DATACHAN_ESTABLISHED", c.State())
	}

	c.End()
	if c.State() != state.HangupSent {
		t.Fatalf("state = %v, want HANGUP_SENT", c.State())
	}
	if sender.last().Kind != state.KindHangup || sender.last().Resp {
		t.Fatalf("sent = %+v, want hangup request", sender.last())
	}
}

func TestHappyIncomingCall(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("bob", "phone2", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Recv("alice", "phone1", message.NewSetup("REM", false, false, "offer", nil))
	if c.State() != state.PendingIncoming {
		t.Fatalf("state = %v, want PENDING_INCOMING", c.State())
	}
	if c.Direction() != state.DirIncoming {
		t.Fatalf("direction = %v, want INCOMING", c.Direction())
	}
	if len(spy.incoming) != 1 || spy.incoming[0] != "offer" {
		t.Fatalf("OnIncoming calls = %v", spy.incoming)
	}

	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}
	sent := sender.last()
	if sent.Kind != state.KindSetup || !sent.Resp || sent.SDP != "ans" {
		t.Fatalf("sent = %+v, want setup response with ans", sent)
	}
}

func TestGlareLocalLoses(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("aaa", "c1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("o1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Recv("zzz", "c2", message.NewSetup("REM", false, false, "o2", nil))

	if c.State() != state.ConflictResolution {
		t.Fatalf("state = %v, want CONFLICT_RESOLUTION", c.State())
	}
	if len(spy.answer) != 1 || spy.answer[0] != true {
		t.Fatalf("OnAnswer calls = %v, want [true]", spy.answer)
	}

	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}
}

func TestGlareLocalWins(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("zzz", "c1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("o1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Recv("aaa", "c2", message.NewSetup("REM", false, false, "o2", nil))

	if c.State() != state.PendingOutgoing {
		t.Fatalf("state = %v, want PENDING_OUTGOING (unchanged)", c.State())
	}
	if len(spy.answer) != 0 {
		t.Fatalf("OnAnswer calls = %v, want none", spy.answer)
	}

	// A subsequent SETUP response advances normally.
	c.Recv("aaa", "c2", message.NewSetup("REM", false, true, "final-answer", nil))
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}
}

func TestSetupTimeout(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	conf := transport.Conf{TimeoutSetup: 20, TimeoutTerm: 5000}
	c, err := New("alice", "phone1", conf, sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitClose(t, spy)

	if c.State() != state.Terminating {
		t.Fatalf("state = %v, want TERMINATING", c.State())
	}
	if got := spy.closed[0]; !errors.Is(got, signalerr.ErrTimedOut) {
		t.Fatalf("close err = %v, want ErrTimedOut", got)
	}
}

func TestInboundCancel(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("bob", "phone2", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Recv("alice", "phone1", message.NewSetup("REM", false, false, "offer", nil))
	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	c.Recv("alice", "phone1", message.NewCancel("REM"))

	if spy.closeCount() != 1 {
		t.Fatalf("close count = %d, want 1", spy.closeCount())
	}
	if !errors.Is(spy.closed[0], signalerr.ErrCancelled) {
		t.Fatalf("close err = %v, want ErrCancelled", spy.closed[0])
	}
	if c.State() != state.Terminating {
		t.Fatalf("state = %v, want TERMINATING", c.State())
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	now := time.Now()
	body := []byte(`{"version":"2.0","type":"setup","sessid":"x","resp":false,"sdp":"o"}`)
	_, err := message.Decode(body, now, now)
	if !errors.Is(err, signalerr.ErrProtocol) {
		t.Fatalf("Decode err = %v, want ErrProtocol", err)
	}
}

func TestCloseFiresAtMostOnce(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Close(signalerr.ErrCancelled)
	c.Close(signalerr.ErrCancelled)
	c.Close(signalerr.ErrTimedOut)

	if spy.closeCount() != 1 {
		t.Fatalf("close count = %d, want 1", spy.closeCount())
	}
}

func TestClosedConnectionIgnoresFurtherTraffic(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Close(signalerr.ErrCancelled)

	before := sender.count()
	c.Recv("bob", "phone2", message.NewSetup("REM", false, true, "answer", nil))
	if sender.count() != before {
		t.Fatalf("Recv after close emitted traffic: before=%d after=%d", before, sender.count())
	}

	if err := c.Start("offer2", nil); !errors.Is(err, signalerr.ErrProtocol) {
		t.Fatalf("Start after close err = %v, want ErrProtocol (via StateError)", err)
	}
}

func TestCancelFromUnboundClientIsDropped(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("bob", "phone2", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Recv("alice", "phone1", message.NewSetup("REM", false, false, "offer", nil))
	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// A CANCEL from a different clientid must be silently dropped.
	c.Recv("mallory", "phoneX", message.NewCancel("REM"))
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED (unaffected)", c.State())
	}
	if spy.closeCount() != 0 {
		t.Fatalf("close count = %d, want 0", spy.closeCount())
	}
}

func TestCancelWithMismatchedSessidIsDropped(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("bob", "phone2", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Recv("alice", "phone1", message.NewSetup("REM", false, false, "offer", nil))
	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	c.Recv("alice", "phone1", message.NewCancel("WRONG"))
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED (unaffected)", c.State())
	}
}

func TestUpdateReqRejectedOutsideLegalStates(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.UpdateReq("sdp", nil)
	if !errors.Is(err, signalerr.ErrProtocol) {
		t.Fatalf("UpdateReq from IDLE err = %v, want ErrProtocol", err)
	}
	if c.State() != state.Idle {
		t.Fatalf("state = %v, want IDLE (unchanged)", c.State())
	}
}

func TestStartRejectsExplicitZeroTimeoutSetup(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	conf := transport.Conf{TimeoutSetup: 0, TimeoutTerm: 5000}
	c, err := New("alice", "phone1", conf, sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Start("sdp", nil); !errors.Is(err, signalerr.ErrProtocol) {
		t.Fatalf("Start() err = %v, want ErrProtocol", err)
	}
	if c.State() != state.Idle {
		t.Fatalf("state = %v, want IDLE (unchanged)", c.State())
	}
}

func TestUpdateReqRejectsExplicitZeroTimeoutSetup(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	conf := transport.Conf{TimeoutSetup: 0, TimeoutTerm: 5000}
	c, err := New("bob", "phone2", conf, sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Drive the connection to ANSWERED via an inbound SETUP/Answer,
	// since Start itself would be refused by the zero TimeoutSetup.
	c.Recv("alice", "phone1", message.NewSetup("REM", false, false, "offer", nil))
	if c.State() != state.PendingIncoming {
		t.Fatalf("state = %v, want PENDING_INCOMING", c.State())
	}
	if err := c.Answer("ans", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}

	if err := c.UpdateReq("sdp", nil); !errors.Is(err, signalerr.ErrProtocol) {
		t.Fatalf("UpdateReq() err = %v, want ErrProtocol", err)
	}
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED (unchanged)", c.State())
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Recv("bob", "phone2", message.NewSetup("REM", false, true, "answer", nil))
	c.SetDatachanEstablished()

	if err := c.UpdateReq("new-sdp", nil); err != nil {
		t.Fatalf("UpdateReq: %v", err)
	}
	if c.State() != state.UpdateSent {
		t.Fatalf("state = %v, want UPDATE_SENT", c.State())
	}

	c.Recv("bob", "phone2", message.NewSetup("REM", true, true, "updated-answer", nil))
	if c.State() != state.Answered {
		t.Fatalf("state = %v, want ANSWERED", c.State())
	}
	if spy.updateResp != 1 {
		t.Fatalf("updateResp calls = %d, want 1", spy.updateResp)
	}
}

func TestSetErrorNotSurfacedOnSetupTimeout(t *testing.T) {
	sender := &recordingSender{}
	spy := newHandlerSpy()
	conf := transport.Conf{TimeoutSetup: 20, TimeoutTerm: 5000}
	c, err := New("alice", "phone1", conf, sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	custom := errors.New("app reason")
	c.SetError(custom)
	if err := c.Start("offer", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitClose(t, spy)
	// SetupTimer fires Close(ErrTimedOut) unconditionally; pendingErr is
	// only consulted by the termination and cancel-tick timers.
	if !errors.Is(spy.closed[0], signalerr.ErrTimedOut) {
		t.Fatalf("close err = %v, want ErrTimedOut", spy.closed[0])
	}
}

func TestSendFailureTerminatesConnection(t *testing.T) {
	sender := failingSender{err: errors.New("transport down")}
	spy := newHandlerSpy()
	c, err := New("alice", "phone1", fastConf(), sender, spy.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.Start("offer", nil)
	if err == nil || err.Error() != "transport down" {
		t.Fatalf("Start err = %v, want transport down", err)
	}
	if c.State() != state.Terminating {
		t.Fatalf("state = %v, want TERMINATING", c.State())
	}
	// Close callback is not invoked from within an intent operation.
	if spy.closeCount() != 0 {
		t.Fatalf("close count = %d, want 0 (async paths only)", spy.closeCount())
	}
}

func TestIsWinnerAntisymmetric(t *testing.T) {
	a := [2]string{"aaa", "c1"}
	b := [2]string{"zzz", "c2"}

	aWinsOverB := isWinner(a[0], a[1], b[0], b[1])
	bWinsOverA := isWinner(b[0], b[1], a[0], a[1])
	if aWinsOverB == bWinsOverA {
		t.Fatalf("isWinner not antisymmetric: a>b=%v b>a=%v", aWinsOverB, bWinsOverA)
	}

	if isWinner(a[0], a[1], a[0], a[1]) {
		t.Fatalf("isWinner(self, self) = true, want false (fixed value)")
	}
}

func waitClose(t *testing.T, spy *handlerSpy) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		spy.closeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}
