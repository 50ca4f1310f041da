package webrtc

import (
	"errors"
	"fmt"
	"sync"

	"avatarstream/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Factory builds peers that render remote media into Sink.
// It implements domain.PeerFactory.
type Factory struct {
	Sink *Sink
}

// NewFactory creates a Factory recording remote media under mediaDir.
func NewFactory(mediaDir string) *Factory {
	return &Factory{Sink: &Sink{Dir: mediaDir}}
}

func (f *Factory) NewPeer(iceServers []domain.ICEServer) (domain.Peer, error) {
	p, err := NewPeer(iceServers, f.Sink)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Peer wraps a Pion PeerConnection answering the avatar service's offer.
type Peer struct {
	pc   *pion.PeerConnection
	sink *Sink

	mu        sync.Mutex
	onTrack   func(kind, mimeType string)
	onMessage func(label string, data []byte)

	closeOnce sync.Once
	closeErr  error
}

// NewPeer creates a PeerConnection with the default codecs and NACK/RTCP
// report interceptors.
func NewPeer(iceServers []domain.ICEServer, sink *Sink) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)
	if err := pion.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	s := pion.SettingEngine{LoggerFactory: loggerFactory{}}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(s),
	)

	servers := make([]pion.ICEServer, 0, len(iceServers))
	for _, srv := range iceServers {
		server := pion.ICEServer{
			URLs:     []string(srv.URLs),
			Username: srv.Username,
		}
		if srv.Credential != "" {
			server.Credential = srv.Credential
		}
		servers = append(servers, server)
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, sink: sink}

	pc.OnTrack(p.handleTrack)
	pc.OnDataChannel(p.handleDataChannel)
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer_connection_state", state.String()).Msg("peer state")
	})

	return p, nil
}

// OnICECandidate registers the callback for locally discovered ICE
// candidates. The end of gathering is reported as nil.
func (p *Peer) OnICECandidate(fn func(candidate *domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			log.Debug().Str("module", "webrtc").Msg("ICE gathering complete")
			fn(nil)
			return
		}

		init := c.ToJSON()
		log.Debug().Str("module", "webrtc").Str("candidate", init.Candidate).Msg("local ICE candidate")
		fn(&domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *Peer) OnICEConnectionStateChange(fn func(state string)) {
	p.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", state.String()).Msg("ICE state")
		fn(state.String())
	})
}

func (p *Peer) OnTrack(fn func(kind, mimeType string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *Peer) OnDataChannelMessage(fn func(label string, data []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = fn
}

func (p *Peer) handleTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	codec := track.Codec()
	log.Info().
		Str("module", "webrtc").
		Str("kind", track.Kind().String()).
		Str("codec", codec.MimeType).
		Uint8("pt", uint8(codec.PayloadType)).
		Msg("got track")

	switch track.Kind() {
	case pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo:
		p.sink.Attach(track)
	default:
		return
	}

	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(track.Kind().String(), codec.MimeType)
	}
}

func (p *Peer) handleDataChannel(dc *pion.DataChannel) {
	label := dc.Label()
	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Str("label", label).Msg("data channel opened")
	})
	dc.OnClose(func() {
		log.Info().Str("module", "webrtc").Str("label", label).Msg("data channel closed")
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		p.mu.Lock()
		fn := p.onMessage
		p.mu.Unlock()
		if fn != nil {
			fn(label, msg.Data)
		}
	})
}

// AddLocalTrack adds a local track and drains the RTCP sent back for it.
func (p *Peer) AddLocalTrack(track pion.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// SetRemoteDescription applies the service's SDP offer.
func (p *Peer) SetRemoteDescription(sdp domain.SDPPayload) error {
	typ := pion.NewSDPType(sdp.Type)
	if typ == pion.SDPTypeUnknown {
		typ = pion.SDPTypeOffer
	}

	if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: typ, SDP: sdp.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	log.Debug().Str("module", "webrtc").Str("type", typ.String()).Msg("remote SDP set")
	return nil
}

// CreateAnswer creates an SDP answer and sets it as the local description.
// Once an answer is applied it is returned again instead of renegotiating.
func (p *Peer) CreateAnswer() (domain.SDPPayload, error) {
	if ld := p.pc.LocalDescription(); ld != nil && ld.Type == pion.SDPTypeAnswer {
		return domain.SDPPayload{Type: ld.Type.String(), SDP: ld.SDP}, nil
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}

	log.Debug().Str("module", "webrtc").Msg("local SDP answer set")
	return domain.SDPPayload{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// Close shuts down the PeerConnection. Later calls return the first result.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		if err := p.pc.Close(); err != nil && !errors.Is(err, pion.ErrConnectionClosed) {
			p.closeErr = fmt.Errorf("close peer connection: %w", err)
		}
	})
	return p.closeErr
}
