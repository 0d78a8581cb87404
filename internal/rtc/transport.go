package rtc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/config"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

const (
	dtlsRetransmissionInterval = 100 * time.Millisecond
	mtu                        = 1400
	iceDisconnectedTimeout     = 10 * time.Second // compatible for ice-lite with firefox client
	iceFailedTimeout           = 25 * time.Second // pion's default
	iceKeepaliveInterval       = 2 * time.Second  // pion's default
)

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Sender is the local half of one outgoing track binding.
type Sender interface {
	Parameters() (json.RawMessage, error)
	ReplaceTrack(track webrtc.TrackLocal) error
}

// Transport is one negotiated WebRTC connection, instantiated from
// server-provided transport parameters. The send transport carries all local
// producers; each receive transport is keyed to one remote peer.
type Transport interface {
	ServerID() string
	Direction() Direction
	DTLSParameters() (json.RawMessage, error)
	AddLocalTrack(track webrtc.TrackLocal) (Sender, error)
	RemoveSender(sender Sender) error
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	WriteRTCP(packets []rtcp.Packet) error
	Close()
}

// TransportFactory builds local transports from server parameters. The
// manager depends on this interface so handshake sequencing is testable
// without ICE.
type TransportFactory interface {
	NewTransport(params TransportParams) (Transport, error)
}

type TransportParams struct {
	Info          signaling.TransportInfo
	Direction     Direction
	EnabledCodecs []config.CodecSpec
	Config        *config.WebRTCConfig
}

// dtlsParameters is the wire form of the local DTLS role and fingerprints
// forwarded during the connect phase of the transport handshake.
type dtlsParameters struct {
	Role         string            `json:"role"`
	Fingerprints []dtlsFingerprint `json:"fingerprints"`
}

type dtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// PCTransport is the pion-backed Transport.
type PCTransport struct {
	params TransportParams
	pc     *webrtc.PeerConnection
	me     *webrtc.MediaEngine
	cert   *webrtc.Certificate

	lock    sync.Mutex
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	closed  bool
}

type PCTransportFactory struct{}

func (PCTransportFactory) NewTransport(params TransportParams) (Transport, error) {
	return NewPCTransport(params)
}

func NewPCTransport(params TransportParams) (*PCTransport, error) {
	pc, me, cert, err := newPeerConnection(params)
	if err != nil {
		return nil, err
	}

	t := &PCTransport{
		params: params,
		pc:     pc,
		me:     me,
		cert:   cert,
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.lock.Lock()
		handler := t.onTrack
		t.lock.Unlock()
		if handler != nil {
			handler(track, receiver)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().
			Str("service", "transport").
			Str("transportID", params.Info.ID).
			Str("state", state.String()).
			Msg("connection state changed")
	})

	return t, nil
}

func newPeerConnection(params TransportParams) (*webrtc.PeerConnection, *webrtc.MediaEngine, *webrtc.Certificate, error) {
	direction := params.Config.Publisher
	if params.Direction == DirectionReceive {
		direction = params.Config.Subscriber
	}

	me, registry, err := createMediaEngine(params.EnabledCodecs, direction)
	if err != nil {
		return nil, nil, nil, err
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, err
	}
	cert, err := webrtc.GenerateCertificate(privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	se := params.Config.SettingEngine
	se.DisableMediaEngineCopy(true)
	se.SetDTLSRetransmissionInterval(dtlsRetransmissionInterval)
	se.SetReceiveMTU(mtu)
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(registry),
	)

	conf := params.Config.Configuration
	conf.Certificates = []webrtc.Certificate{*cert}

	pc, err := api.NewPeerConnection(conf)
	if err != nil {
		return nil, nil, nil, err
	}

	return pc, me, cert, nil
}

func (t *PCTransport) ServerID() string {
	return t.params.Info.ID
}

func (t *PCTransport) Direction() Direction {
	return t.params.Direction
}

// DTLSParameters returns the local certificate fingerprints in the shape the
// connect phase forwards to the server.
func (t *PCTransport) DTLSParameters() (json.RawMessage, error) {
	fingerprints, err := t.cert.GetFingerprints()
	if err != nil {
		return nil, err
	}

	params := dtlsParameters{Role: "auto"}
	for _, f := range fingerprints {
		params.Fingerprints = append(params.Fingerprints, dtlsFingerprint{
			Algorithm: f.Algorithm,
			Value:     f.Value,
		})
	}
	return json.Marshal(params)
}

func (t *PCTransport) AddLocalTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &pcSender{sender: sender}, nil
}

func (t *PCTransport) RemoveSender(sender Sender) error {
	ps, ok := sender.(*pcSender)
	if !ok {
		return nil
	}
	return t.pc.RemoveTrack(ps.sender)
}

func (t *PCTransport) OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.lock.Lock()
	t.onTrack = handler
	t.lock.Unlock()
}

func (t *PCTransport) WriteRTCP(packets []rtcp.Packet) error {
	return t.pc.WriteRTCP(packets)
}

func (t *PCTransport) Close() {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return
	}
	t.closed = true
	t.lock.Unlock()

	_ = t.pc.Close()
}

type pcSender struct {
	sender *webrtc.RTPSender
}

// Parameters marshals the negotiated RTP send parameters for the produce
// phase of the handshake.
func (s *pcSender) Parameters() (json.RawMessage, error) {
	return json.Marshal(s.sender.GetParameters())
}

func (s *pcSender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(track)
}
