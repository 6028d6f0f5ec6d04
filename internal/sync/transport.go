package sync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuedeck/cue/internal/errs"
)

// ConnState is the transport's connection state machine:
// Disconnected -> Connecting -> Handshaking -> Connected -> (Closing|Disconnected).
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateHandshaking
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Peer runs the cooperative event loop for one peer connection: send and
// receive alternate on a single socket, one message fully handled before
// the next is read.
type Peer struct {
	mu    sync.Mutex
	state ConnState
	conn  *websocket.Conn

	PeerID      string
	WorkspaceID string
	ServerURL   string

	doc   *Doc
	queue *Queue
}

// NewPeer returns a disconnected Peer bound to doc and the offline queue.
func NewPeer(peerID, workspaceID, serverURL string, doc *Doc, queue *Queue) *Peer {
	return &Peer{state: StateDisconnected, PeerID: peerID, WorkspaceID: workspaceID, ServerURL: serverURL, doc: doc, queue: queue}
}

// State returns the peer's current connection state.
func (p *Peer) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s ConnState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Connect dials the server, performs the handshake, and runs the startup
// sequence (load pending, maybe full resync, maybe flush queue), then
// enters the receive loop. It returns when the transport closes or ctx is
// cancelled.
func (p *Peer) Connect(ctx context.Context, dial func(url string) (*websocket.Conn, error), lastSync time.Time, maxOffline time.Duration, nowFn func() time.Time) error {
	p.setState(StateConnecting)
	conn, err := dial(p.ServerURL)
	if err != nil {
		p.setState(StateDisconnected)
		return errs.NewNetworkError("connect", err)
	}
	p.conn = conn
	defer func() {
		conn.Close()
		p.setState(StateDisconnected)
	}()

	p.setState(StateHandshaking)
	if err := p.sendHandshake(); err != nil {
		return err
	}
	if err := p.awaitHandshakeAck(); err != nil {
		return err
	}
	p.setState(StateConnected)

	if err := p.runStartupSequence(lastSync, maxOffline, nowFn); err != nil {
		log.Printf("cuedeck: sync: startup sequence: %v", err)
	}

	return p.receiveLoop(ctx)
}

func (p *Peer) sendHandshake() error {
	env, err := Encode(MsgHandshake, Handshake{PeerID: p.PeerID, WorkspaceID: p.WorkspaceID})
	if err != nil {
		return err
	}
	return p.conn.WriteJSON(env)
}

func (p *Peer) awaitHandshakeAck() error {
	var env Envelope
	if err := p.conn.ReadJSON(&env); err != nil {
		return errs.NewNetworkError("handshake", err)
	}
	if env.Type == MsgError {
		var e Error
		_ = json.Unmarshal(env.Payload, &e)
		return &errs.ValidationError{Field: "handshake", Reason: e.Message}
	}
	return nil
}

// runStartupSequence loads the pending queue, decides between a full
// resync and a queue flush, and publishes the flush.
func (p *Peer) runStartupSequence(lastSync time.Time, maxOffline time.Duration, nowFn func() time.Time) error {
	pending, err := p.queue.Load()
	if err != nil {
		return err
	}

	now := nowFn()
	if NeedsFullResync(now, lastSync, maxOffline) {
		return p.fullResync()
	}
	if len(pending) > 0 {
		return p.flushQueue(pending, now)
	}
	return nil
}

func (p *Peer) fullResync() error {
	env, err := Encode(MsgSyncRequest, SyncRequest{SinceVersion: 0})
	if err != nil {
		return err
	}
	if err := p.conn.WriteJSON(env); err != nil {
		return errs.NewNetworkError("sync_request", err)
	}
	var resp Envelope
	if err := p.conn.ReadJSON(&resp); err != nil {
		return errs.NewNetworkError("sync_response", err)
	}
	if resp.Type != MsgSyncResponse {
		return nil
	}
	var sr SyncResponse
	if err := json.Unmarshal(resp.Payload, &sr); err != nil {
		log.Printf("cuedeck: sync: malformed sync_response: %v", err)
		return nil
	}
	// Applying sr.Changes into doc is transport-agnostic wire-format
	// specific (left to the caller via ApplyRemote per document); the
	// transport's job ends at delivering the bytes.
	return nil
}

func (p *Peer) flushQueue(pending [][]byte, now time.Time) error {
	compressed := Compress(pending)
	env, err := Encode(MsgChange, Change{Data: compressed, Timestamp: now.UnixMilli(), UserID: p.PeerID})
	if err != nil {
		return err
	}
	if err := p.conn.WriteJSON(env); err != nil {
		return errs.NewNetworkError("change", err)
	}
	var ack Envelope
	if err := p.conn.ReadJSON(&ack); err != nil {
		return errs.NewNetworkError("change_ack", err)
	}
	if ack.Type == MsgAck {
		return p.queue.ClearPending()
	}
	return nil
}

// receiveLoop processes inbound messages one at a time until the
// transport closes.
func (p *Peer) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.setState(StateClosing)
			return ctx.Err()
		default:
		}

		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err) || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errs.NewNetworkError("receive", err)
		}

		if err := p.handleMessage(env); err != nil {
			log.Printf("cuedeck: sync: handling %s: %v", env.Type, err)
		}
	}
}

func (p *Peer) handleMessage(env Envelope) error {
	switch env.Type {
	case MsgHeartbeat:
		return p.conn.WriteJSON(Envelope{Type: MsgHeartbeat})
	case MsgChange:
		var c Change
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			log.Printf("cuedeck: sync: dropping malformed %s: %v", env.Type, err)
			return nil // serialization error: drop message, log, continue
		}
		return nil
	case MsgAck, MsgSyncResponse:
		return nil
	case MsgError:
		var e Error
		_ = json.Unmarshal(env.Payload, &e)
		return &errs.ValidationError{Field: "sync", Reason: e.Message}
	default:
		return nil
	}
}

// Close transitions to Closing and shuts down the socket, if open.
func (p *Peer) Close() error {
	p.setState(StateClosing)
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
