// Command signaldemo drives two in-process signalconn connections
// through a full call, printing each transition as it happens. It
// exists to exercise the conn/transport/message stack end to end, the
// way the teacher's cmd/signaling/main.go exercises the switchboard.
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/halvorsen/signalconn/internal/banner"
	"github.com/halvorsen/signalconn/internal/signalconn/config"
	"github.com/halvorsen/signalconn/internal/signalconn/conn"
	"github.com/halvorsen/signalconn/internal/signalconn/logging"
	"github.com/halvorsen/signalconn/internal/signalconn/message"
	"github.com/halvorsen/signalconn/internal/signalconn/props"
	"github.com/halvorsen/signalconn/internal/signalconn/sdpinfo"
	"github.com/halvorsen/signalconn/internal/signalconn/signalerr"
	"github.com/halvorsen/signalconn/internal/signalconn/transport"
)

func main() {
	cfg := config.Load()
	logging.InitLogger(os.Stdout)
	logging.SetLevel(cfg.LogLevel)

	banner.Print("signalconn demo", []banner.ConfigLine{
		{Label: "timeout_setup", Value: cfg.TimeoutSetup.String()},
		{Label: "timeout_term", Value: cfg.TimeoutTerm.String()},
		{Label: "loglevel", Value: cfg.LogLevel},
	})

	conf := transport.Conf{
		TimeoutSetup: cfg.TimeoutSetup.Milliseconds(),
		TimeoutTerm:  cfg.TimeoutTerm.Milliseconds(),
	}

	runHappyCall(conf)
	runGlare(conf)
}

// pairTransport routes messages between exactly the two connections
// it is told about. Send is delivered on its own goroutine so that a
// handler reacting synchronously to an inbound message (e.g. an
// application answering immediately from within on_incoming) can
// never reenter the sender's own locked call stack.
type pairTransport struct {
	mu    sync.Mutex
	peers map[*conn.Conn]peerInfo
}

type peerInfo struct {
	userid, clientid string
	remote           *conn.Conn
}

func newPairTransport() *pairTransport {
	return &pairTransport{peers: make(map[*conn.Conn]peerInfo)}
}

func (t *pairTransport) bind(local *conn.Conn, userid, clientid string, remote *conn.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[local] = peerInfo{userid: userid, clientid: clientid, remote: remote}
}

func (t *pairTransport) Send(c any, msg *message.Message) error {
	local, ok := c.(*conn.Conn)
	if !ok {
		return signalerr.ErrInvalid
	}
	t.mu.Lock()
	info, ok := t.peers[local]
	t.mu.Unlock()
	if !ok {
		return signalerr.ErrUnsupported
	}

	go info.remote.Recv(info.userid, info.clientid, msg)
	return nil
}

func runHappyCall(conf transport.Conf) {
	fmt.Println("=== happy call ===")
	tr := newPairTransport()

	var wg sync.WaitGroup
	wg.Add(1)

	var bob *conn.Conn

	alice, err := conn.New("alice", "phone1", conf, tr, transport.Handlers{
		OnAnswer: func(reset bool, sdp string, p *props.Props) {
			fmt.Printf("alice: answered (%s)\n", sdpinfo.Summarize(sdp))
		},
		OnClose: func(err error) {
			fmt.Printf("alice: closed, err=%v\n", err)
			wg.Done()
		},
	})
	must(err)

	bob, err = conn.New("bob", "phone2", conf, tr, transport.Handlers{
		OnIncoming: func(msgTime int64, useridSender, clientidSender string, age int64, sdp string, p *props.Props) {
			fmt.Printf("bob: incoming from %s/%s (%s)\n", useridSender, clientidSender, sdpinfo.Summarize(sdp))
			must(bob.Answer("v=0\r\nm=audio 1 RTP/AVP 0", nil))
		},
		OnClose: func(err error) {
			fmt.Printf("bob: closed, err=%v\n", err)
		},
	})
	must(err)

	tr.bind(alice, "alice", "phone1", bob)
	tr.bind(bob, "bob", "phone2", alice)

	must(alice.Start("v=0\r\nm=audio 1 RTP/AVP 0", nil))

	time.Sleep(50 * time.Millisecond)
	alice.SetDatachanEstablished()
	alice.End()

	wg.Wait()
}

func runGlare(conf transport.Conf) {
	fmt.Println("=== glare ===")
	tr := newPairTransport()

	var aaa *conn.Conn

	aaa, err := conn.New("aaa", "c1", conf, tr, transport.Handlers{
		OnAnswer: func(reset bool, sdp string, p *props.Props) {
			fmt.Printf("aaa: on_answer reset=%v\n", reset)
			if reset {
				must(aaa.Answer("v=0\r\nm=audio 1 RTP/AVP 0", nil))
			}
		},
	})
	must(err)

	zzz, err := conn.New("zzz", "c2", conf, tr, transport.Handlers{
		OnAnswer: func(reset bool, sdp string, p *props.Props) {
			fmt.Printf("zzz: on_answer reset=%v\n", reset)
		},
	})
	must(err)

	tr.bind(aaa, "aaa", "c1", zzz)
	tr.bind(zzz, "zzz", "c2", aaa)

	must(aaa.Start("offer-from-aaa", nil))
	must(zzz.Start("offer-from-zzz", nil))

	time.Sleep(50 * time.Millisecond)
	fmt.Printf("aaa: state=%s (loser expected)\n", aaa.State())
	fmt.Printf("zzz: state=%s (winner expected)\n", zzz.State())
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "signaldemo:", err)
		os.Exit(1)
	}
}
