package peer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

const (
	chatLabel      = "chat"
	connectTimeout = 30 * time.Second
)

// Session negotiates a data channel with the matched partner through the
// broker and carries chat messages over it.
type Session struct {
	client  *Client
	handler *Handler
	match   *Match
	pc      *pion.PeerConnection
	logger  *slog.Logger

	mu sync.Mutex
	dc *pion.DataChannel

	// Owned by signalLoop.
	pending   []pion.ICECandidateInit
	remoteSet bool

	messages chan ChatEvent
	opened   chan struct{}
	failed   chan struct{}
	done     chan struct{}

	openOnce  sync.Once
	failOnce  sync.Once
	closeOnce sync.Once
}

// NewPeerConnection builds a PeerConnection with the configured ICE servers.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || BehindRestrictiveNAT()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// NewSession prepares a session for match.
func NewSession(client *Client, handler *Handler, cfg *config.Config, match *Match) (*Session, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		client:   client,
		handler:  handler,
		match:    match,
		pc:       pc,
		logger:   slog.Default().With("room_id", match.RoomID),
		messages: make(chan ChatEvent, 64),
		opened:   make(chan struct{}),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := s.sendSignal(SignalPayload{Type: SignalCandidate, Candidate: &init}); err != nil {
			s.logger.Debug("failed to send candidate", "err", err)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.logger.Debug("peer connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			s.failOnce.Do(func() { close(s.failed) })
		}
	})

	if !match.Initiator {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() == chatLabel {
				s.attach(dc)
			}
		})
	}

	return s, nil
}

// Start runs negotiation and blocks until the data channel opens.
func (s *Session) Start(ctx context.Context) error {
	go s.signalLoop()

	if s.match.Initiator {
		ordered := true
		dc, err := s.pc.CreateDataChannel(chatLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return NewError("create data channel", err)
		}
		s.attach(dc)

		offer, err := s.pc.CreateOffer(nil)
		if err != nil {
			return NewError("create offer", err)
		}
		if err := s.pc.SetLocalDescription(offer); err != nil {
			return NewError("set local description", err)
		}
		if err := s.sendSignal(SignalPayload{Type: SignalOffer, SDP: offer.SDP}); err != nil {
			return NewError("send offer", err)
		}
	}

	timeout := time.NewTimer(connectTimeout)
	defer timeout.Stop()

	select {
	case <-s.opened:
		return nil
	case <-s.handler.PeerLeft:
		return ErrPeerLeft
	case <-s.failed:
		return ErrConnectionFailed
	case <-s.handler.Done():
		return ErrServerClosed
	case <-ctx.Done():
		return NewError("connect to partner", ctx.Err())
	case <-timeout.C:
		return WrapError("connect to partner", ErrTimeout, "data channel did not open")
	}
}

// Send delivers a line of text to the partner.
func (s *Session) Send(body string) error {
	data, err := EncodeText(body, time.Now())
	if err != nil {
		return err
	}
	return s.sendRaw(data)
}

// Messages delivers chat events from the partner.
func (s *Session) Messages() <-chan ChatEvent {
	return s.messages
}

// Failed is closed when the peer connection fails or closes.
func (s *Session) Failed() <-chan struct{} {
	return s.failed
}

// Close says goodbye and tears the connection down.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if bye, encErr := EncodeBye(); encErr == nil {
			_ = s.sendRaw(bye)
		}
		close(s.done)
		err = s.pc.Close()
	})
	return err
}

func (s *Session) sendRaw(data []byte) error {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (s *Session) attach(dc *pion.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.openOnce.Do(func() { close(s.opened) })
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		ev, err := DecodeChat(msg.Data)
		if err != nil {
			s.logger.Debug("dropping chat message", "err", err)
			return
		}
		select {
		case s.messages <- ev:
		case <-s.done:
		}
	})
}

func (s *Session) sendSignal(p SignalPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.SendMessage(&signaling.Message{
		Type:    signaling.MessageTypeSignal,
		RoomID:  s.match.RoomID,
		Payload: raw,
	})
}

func (s *Session) signalLoop() {
	for {
		select {
		case sig, ok := <-s.handler.Signal:
			if !ok {
				return
			}
			if sig.RoomID != s.match.RoomID {
				continue
			}
			if err := s.handleSignal(sig.Payload); err != nil {
				s.logger.Debug("signal failed", "type", sig.Payload.Type, "err", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleSignal(p SignalPayload) error {
	switch p.Type {
	case SignalOffer:
		if err := s.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: p.SDP}); err != nil {
			return err
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return NewError("create answer", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return NewError("set local description", err)
		}
		return s.sendSignal(SignalPayload{Type: SignalAnswer, SDP: answer.SDP})

	case SignalAnswer:
		return s.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: p.SDP})

	case SignalCandidate:
		if p.Candidate == nil {
			return nil
		}
		// Candidates may arrive before the description they belong to.
		if !s.remoteSet {
			s.pending = append(s.pending, *p.Candidate)
			return nil
		}
		if err := s.pc.AddICECandidate(*p.Candidate); err != nil {
			return NewError("add ICE candidate", err)
		}
		return nil

	default:
		return WrapError("handle signal", ErrUnexpectedSignal, p.Type)
	}
}

func (s *Session) setRemote(desc pion.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}
	s.remoteSet = true

	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.logger.Debug("failed to add queued candidate", "err", err)
		}
	}
	s.pending = nil
	return nil
}
