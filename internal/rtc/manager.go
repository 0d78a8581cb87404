package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/config"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/media"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/telemetry"
)

var (
	errNoRTPCapabilities = errors.New("rtc: RTP capabilities are not loaded")
	ErrShareRefused      = errors.New("rtc: another peer is sharing and could not be disconnected")
)

// NegotiationError fails one transport operation without tearing down the
// session.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("rtc: %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Signaler is the slice of the signaling surface the manager drives.
type Signaler interface {
	CreateTransport(ctx context.Context, isConsumer bool) (*signaling.TransportInfo, error)
	Produce(ctx context.Context, params signaling.ProduceParams) (string, error)
	ProducerConnected(dtlsParameters json.RawMessage) error
	ReceiverConnected(dtlsParameters json.RawMessage, serverTransportID string) error
	Consume(ctx context.Context, params signaling.ConsumeParams) (*signaling.ConsumeResult, error)
	ConsumerResume(serverConsumerID string) error
	GetProducers(ctx context.Context) ([]signaling.ProducerInfo, error)
	DisconnectOtherShareScreen(ctx context.Context) error
	BroadcastStopShareScreen() error
	ProducerClosed(producerID string) error
}

// receiveGroup is the per-remote-peer inbound state: one transport shared by
// that peer's consumers.
type receiveGroup struct {
	transport Transport
	consumers map[string]*Consumer
}

// ManagerOptions wires the manager's collaborators.
type ManagerOptions struct {
	Signaler   Signaler
	Provider   media.Provider
	Factory    TransportFactory
	Bus        eventbus.Publisher
	RTCConfig  config.RTCConfig
	WebRTC     *config.WebRTCConfig
	MultiShare bool
}

// Manager owns the single send transport with its producers and the
// per-remote-peer receive transports with their consumers. All mutation goes
// through the session dispatch point; the manager's own lock only guards
// against concurrent reads from diagnostics.
type Manager struct {
	opts     ManagerOptions
	selector *media.Selector

	mu              sync.Mutex
	rtpCapabilities json.RawMessage

	send          Transport
	sendConnected bool
	producers     map[signaling.MediaType]*Producer

	recv         map[core.PeerID]*receiveGroup
	remoteShares map[core.PeerID]string
}

func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		opts:         opts,
		selector:     media.NewSelector(opts.Provider),
		producers:    make(map[signaling.MediaType]*Producer),
		recv:         make(map[core.PeerID]*receiveGroup),
		remoteShares: make(map[core.PeerID]string),
	}
	opts.Provider.OnDeviceChange(func() {
		m.HandleDeviceChange(context.Background())
	})
	return m
}

// SetRTPCapabilities stores the router capabilities received in the join ack.
// Consuming is impossible before this.
func (m *Manager) SetRTPCapabilities(caps json.RawMessage) {
	m.mu.Lock()
	m.rtpCapabilities = caps
	m.mu.Unlock()
}

// EnableMicrophone acquires local audio and produces it. A permission denial
// leaves the producer absent and is not a session error.
func (m *Manager) EnableMicrophone(ctx context.Context) error {
	track, err := m.opts.Provider.AcquireMicrophone(ctx, m.selector.Selected(media.AudioInput))
	if err != nil {
		return err
	}
	return m.produce(ctx, track, signaling.AppData{MediaType: signaling.MediaAudio})
}

func (m *Manager) EnableCamera(ctx context.Context) error {
	track, err := m.opts.Provider.AcquireCamera(ctx, m.selector.Selected(media.VideoInput))
	if err != nil {
		return err
	}
	return m.produce(ctx, track, signaling.AppData{MediaType: signaling.MediaCamera})
}

func (m *Manager) DisableMicrophone() {
	m.closeProducer(signaling.MediaAudio)
}

func (m *Manager) DisableCamera() {
	m.closeProducer(signaling.MediaCamera)
}

// StartScreenShare produces the local screen. With multi-share disabled and a
// remote share active, the remote share must be disconnected first; when that
// fails no local producer is created.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	otherSharing := len(m.remoteShares) > 0
	m.mu.Unlock()

	if !m.opts.MultiShare && otherSharing {
		if err := m.opts.Signaler.DisconnectOtherShareScreen(ctx); err != nil {
			log.Warn().Err(err).Str("service", "rtc").Msg("could not disconnect other screen share")
			return ErrShareRefused
		}
	}

	track, err := m.opts.Provider.AcquireScreen(ctx)
	if err != nil {
		return err
	}
	return m.produce(ctx, track, signaling.AppData{MediaType: signaling.MediaScreen})
}

// StopScreenShare closes the local share and tells the room about it.
func (m *Manager) StopScreenShare() {
	m.closeProducer(signaling.MediaScreen)
	if err := m.opts.Signaler.BroadcastStopShareScreen(); err != nil {
		log.Debug().Err(err).Str("service", "rtc").Msg("broadcast stop share")
	}
}

// produce runs the full produce handshake: lazy send transport creation, the
// one-shot connect phase, then transport-produce for the assigned id.
func (m *Manager) produce(ctx context.Context, track media.Track, appData signaling.AppData) error {
	transport, err := m.ensureSendTransport(ctx)
	if err != nil {
		track.Stop()
		return &NegotiationError{Op: "create send transport", Err: err}
	}

	sender, err := transport.AddLocalTrack(track.Local())
	if err != nil {
		track.Stop()
		return &NegotiationError{Op: "add track", Err: err}
	}

	if err := m.connectSendTransport(transport); err != nil {
		transport.RemoveSender(sender)
		track.Stop()
		return &NegotiationError{Op: "connect send transport", Err: err}
	}

	rtpParameters, err := sender.Parameters()
	if err != nil {
		transport.RemoveSender(sender)
		track.Stop()
		return &NegotiationError{Op: "rtp parameters", Err: err}
	}

	producerID, err := m.opts.Signaler.Produce(ctx, signaling.ProduceParams{
		Kind:          string(track.Kind()),
		RTPParameters: rtpParameters,
		AppData:       appData,
	})
	if err != nil {
		transport.RemoveSender(sender)
		track.Stop()
		return &NegotiationError{Op: "produce", Err: err}
	}

	producer := newProducer(producerID, appData, transport, track, sender)

	m.mu.Lock()
	if old, ok := m.producers[appData.MediaType]; ok {
		old.Close()
	}
	m.producers[appData.MediaType] = producer
	m.mu.Unlock()

	log.Info().
		Str("service", "rtc").
		Str("producerID", producerID).
		Str("mediaType", string(appData.MediaType)).
		Msg("producer started")

	m.publish(eventbus.Event{Kind: eventbus.ProducerStarted, Message: string(appData.MediaType)})

	return nil
}

// ensureSendTransport creates the single outbound transport lazily on first
// produce and reuses it afterwards.
func (m *Manager) ensureSendTransport(ctx context.Context) (Transport, error) {
	m.mu.Lock()
	if m.send != nil {
		t := m.send
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	info, err := m.opts.Signaler.CreateTransport(ctx, false)
	if err != nil {
		return nil, err
	}

	transport, err := m.opts.Factory.NewTransport(TransportParams{
		Info:          *info,
		Direction:     DirectionSend,
		EnabledCodecs: m.opts.RTCConfig.EnabledCodecs,
		Config:        m.opts.WebRTC,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.send != nil {
		// lost the race against a concurrent produce
		t := m.send
		m.mu.Unlock()
		transport.Close()
		return t, nil
	}
	m.send = transport
	m.mu.Unlock()

	telemetry.TransportOpened(string(DirectionSend))

	return transport, nil
}

// connectSendTransport runs the DTLS connect phase exactly once per send
// transport, on the first produce.
func (m *Manager) connectSendTransport(transport Transport) error {
	m.mu.Lock()
	if m.sendConnected {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	dtls, err := transport.DTLSParameters()
	if err != nil {
		return err
	}
	if err := m.opts.Signaler.ProducerConnected(dtls); err != nil {
		return err
	}

	m.mu.Lock()
	m.sendConnected = true
	m.mu.Unlock()

	return nil
}

func (m *Manager) closeProducer(mediaType signaling.MediaType) {
	m.mu.Lock()
	producer, ok := m.producers[mediaType]
	if ok {
		delete(m.producers, mediaType)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	producer.Close()
	if err := m.opts.Signaler.ProducerClosed(producer.ID()); err != nil {
		log.Debug().Err(err).Str("service", "rtc").Str("producerID", producer.ID()).Msg("notify producer closed")
	}

	m.publish(eventbus.Event{Kind: eventbus.ProducerStopped, Message: string(mediaType)})
}

// ConsumeRemote runs the consume handshake for one discovered remote
// producer: per-peer receive transport (created on first production from that
// peer, reused afterwards), consume request, then the mandatory resume.
func (m *Manager) ConsumeRemote(ctx context.Context, info signaling.ProducerInfo) error {
	m.mu.Lock()
	caps := m.rtpCapabilities
	m.mu.Unlock()
	if len(caps) == 0 {
		return errNoRTPCapabilities
	}

	group, err := m.ensureReceiveGroup(ctx, info.UserID)
	if err != nil {
		return &NegotiationError{Op: "create receive transport", Err: err}
	}

	res, err := m.opts.Signaler.Consume(ctx, signaling.ConsumeParams{
		RTPCapabilities:          caps,
		RemoteProducerID:         info.ProducerID,
		ServerReceiveTransportID: group.transport.ServerID(),
		RemoteAppData:            info.AppData,
	})
	if err != nil {
		return &NegotiationError{Op: "consume", Err: err}
	}
	if res.Error != "" {
		return &NegotiationError{Op: "consume", Err: errors.New(res.Error)}
	}

	consumer := newConsumer(res, info.UserID, group.transport)

	m.mu.Lock()
	group.consumers[consumer.ServerID()] = consumer
	if info.AppData.IsScreen() {
		m.remoteShares[info.UserID] = info.ProducerID
	}
	m.mu.Unlock()

	// The consumer starts server-side paused; resume or no media flows.
	if err := m.opts.Signaler.ConsumerResume(consumer.ServerID()); err != nil {
		m.mu.Lock()
		delete(group.consumers, consumer.ServerID())
		// only unwind the share mark this consume set; the peer may still be
		// sharing through an earlier consumer
		if info.AppData.IsScreen() && m.remoteShares[info.UserID] == info.ProducerID {
			delete(m.remoteShares, info.UserID)
		}
		m.mu.Unlock()
		consumer.Close()
		return &NegotiationError{Op: "consumer resume", Err: err}
	}
	consumer.markResumed()

	telemetry.ConsumerAdded()
	m.publish(eventbus.Event{Kind: eventbus.ConsumerAdded, PeerID: info.UserID, Message: string(info.AppData.MediaType)})

	log.Info().
		Str("service", "rtc").
		Str("consumerID", consumer.ServerID()).
		Str("peerID", string(info.UserID)).
		Msg("consumer resumed")

	return nil
}

func (m *Manager) ensureReceiveGroup(ctx context.Context, peerID core.PeerID) (*receiveGroup, error) {
	m.mu.Lock()
	if group, ok := m.recv[peerID]; ok {
		m.mu.Unlock()
		return group, nil
	}
	m.mu.Unlock()

	info, err := m.opts.Signaler.CreateTransport(ctx, true)
	if err != nil {
		return nil, err
	}

	transport, err := m.opts.Factory.NewTransport(TransportParams{
		Info:          *info,
		Direction:     DirectionReceive,
		EnabledCodecs: m.opts.RTCConfig.EnabledCodecs,
		Config:        m.opts.WebRTC,
	})
	if err != nil {
		return nil, err
	}

	dtls, err := transport.DTLSParameters()
	if err != nil {
		transport.Close()
		return nil, err
	}
	if err := m.opts.Signaler.ReceiverConnected(dtls, info.ID); err != nil {
		transport.Close()
		return nil, err
	}

	group := &receiveGroup{
		transport: transport,
		consumers: make(map[string]*Consumer),
	}
	transport.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.attachTrack(peerID, track, receiver)
	})

	m.mu.Lock()
	if existing, ok := m.recv[peerID]; ok {
		m.mu.Unlock()
		transport.Close()
		return existing, nil
	}
	m.recv[peerID] = group
	m.mu.Unlock()

	telemetry.TransportOpened(string(DirectionReceive))

	return group, nil
}

// attachTrack routes a surfaced remote track to the first consumer of that
// peer still waiting for one with a matching kind.
func (m *Manager) attachTrack(peerID core.PeerID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	m.mu.Lock()
	group, ok := m.recv[peerID]
	if !ok {
		m.mu.Unlock()
		return
	}
	var target *Consumer
	for _, consumer := range group.consumers {
		if consumer.kind == track.Kind().String() && !consumer.Closed() {
			target = consumer
			break
		}
	}
	m.mu.Unlock()

	if target == nil {
		log.Debug().Str("service", "rtc").Str("peerID", string(peerID)).Msg("track without consumer")
		return
	}
	target.attachTrack(track, receiver)
}

// HandleProducerClosed closes the matching consumer. When it was the peer's
// last one the now-idle receive transport is torn down with it; a later
// production from that peer negotiates a fresh transport. Closing an
// already-closed consumer is a no-op.
func (m *Manager) HandleProducerClosed(params signaling.ProducerClosedParams) {
	m.mu.Lock()
	var closedConsumer *Consumer
	var idleTransport Transport
	for peerID, group := range m.recv {
		for id, consumer := range group.consumers {
			if consumer.ProducerID() == params.RemoteProducerID {
				closedConsumer = consumer
				delete(group.consumers, id)
				break
			}
		}
		if closedConsumer != nil {
			if len(group.consumers) == 0 {
				idleTransport = group.transport
				delete(m.recv, peerID)
			}
			break
		}
	}
	if producerID, ok := m.remoteShares[params.UserID]; ok && producerID == params.RemoteProducerID {
		delete(m.remoteShares, params.UserID)
	}
	m.mu.Unlock()

	if closedConsumer == nil {
		return
	}

	closedConsumer.Close()
	telemetry.ConsumerRemoved()
	if idleTransport != nil {
		idleTransport.Close()
		telemetry.TransportClosed(string(DirectionReceive))
	}
	m.publish(eventbus.Event{Kind: eventbus.ConsumerRemoved, PeerID: params.UserID})
}

// HandleShareScreenStopped closes the local screen producer without
// re-broadcasting the stop. Used when the stop instruction arrives from the
// room instead of from the local user.
func (m *Manager) HandleShareScreenStopped() {
	m.closeProducer(signaling.MediaScreen)
}

// HandleRemoteShareStopped clears the remote-share mark when the sharer
// stops by broadcast rather than by producer close.
func (m *Manager) HandleRemoteShareStopped(peerID core.PeerID) {
	m.mu.Lock()
	delete(m.remoteShares, peerID)
	m.mu.Unlock()
}

// RemovePeer releases everything keyed to a departed remote peer: all its
// consumers and its receive transport.
func (m *Manager) RemovePeer(peerID core.PeerID) {
	m.mu.Lock()
	group, ok := m.recv[peerID]
	if ok {
		delete(m.recv, peerID)
	}
	delete(m.remoteShares, peerID)
	m.mu.Unlock()

	if !ok {
		return
	}

	for _, consumer := range group.consumers {
		consumer.Close()
		telemetry.ConsumerRemoved()
	}
	group.transport.Close()
	telemetry.TransportClosed(string(DirectionReceive))
}

// SwitchMicrophone acquires the requested device and replaces the active
// producer's track in place. Without an active producer only the selection
// changes.
func (m *Manager) SwitchMicrophone(ctx context.Context, deviceID string) error {
	return m.switchDevice(ctx, deviceID, media.AudioInput, signaling.MediaAudio)
}

func (m *Manager) SwitchCamera(ctx context.Context, deviceID string) error {
	return m.switchDevice(ctx, deviceID, media.VideoInput, signaling.MediaCamera)
}

// SwitchSpeaker only records the selection; playback routing happens in the
// embedding application.
func (m *Manager) SwitchSpeaker(deviceID string) {
	m.selector.Select(media.AudioOutput, deviceID)
}

func (m *Manager) switchDevice(ctx context.Context, deviceID string, kind media.DeviceKind, mediaType signaling.MediaType) error {
	m.mu.Lock()
	producer := m.producers[mediaType]
	m.mu.Unlock()

	if producer == nil || producer.Closed() {
		m.selector.Select(kind, deviceID)
		return nil
	}

	var track media.Track
	var err error
	switch kind {
	case media.AudioInput:
		track, err = m.opts.Provider.AcquireMicrophone(ctx, deviceID)
	default:
		track, err = m.opts.Provider.AcquireCamera(ctx, deviceID)
	}
	if err != nil {
		return err
	}

	if err := producer.ReplaceTrack(track); err != nil {
		return &NegotiationError{Op: "replace track", Err: err}
	}
	m.selector.Select(kind, deviceID)

	return nil
}

// HandleDeviceChange reacts to hardware changes: when a selected device
// disappeared, fall back to the first available device of that kind.
func (m *Manager) HandleDeviceChange(ctx context.Context) {
	if id, changed := m.selector.Fallback(media.AudioInput); changed && id != "" {
		if err := m.SwitchMicrophone(ctx, id); err != nil {
			log.Warn().Err(err).Str("service", "rtc").Msg("microphone fallback failed")
		}
	}
	if id, changed := m.selector.Fallback(media.VideoInput); changed && id != "" {
		if err := m.SwitchCamera(ctx, id); err != nil {
			log.Warn().Err(err).Str("service", "rtc").Msg("camera fallback failed")
		}
	}
	if id, changed := m.selector.Fallback(media.AudioOutput); changed && id != "" {
		m.SwitchSpeaker(id)
	}
}

// CloseAll releases every owned resource: all producers with their tracks,
// the send transport, and every receive transport with its consumers.
// Idempotent; no hardware resource may outlive the session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	producers := m.producers
	send := m.send
	sendWasOpen := send != nil
	recv := m.recv
	m.producers = make(map[signaling.MediaType]*Producer)
	m.recv = make(map[core.PeerID]*receiveGroup)
	m.remoteShares = make(map[core.PeerID]string)
	m.send = nil
	m.sendConnected = false
	m.mu.Unlock()

	for _, producer := range producers {
		producer.Close()
	}
	if sendWasOpen {
		send.Close()
		telemetry.TransportClosed(string(DirectionSend))
	}
	for _, group := range recv {
		for _, consumer := range group.consumers {
			consumer.Close()
			telemetry.ConsumerRemoved()
		}
		group.transport.Close()
		telemetry.TransportClosed(string(DirectionReceive))
	}
}

// Selector exposes device selection for the embedding application.
func (m *Manager) Selector() *media.Selector {
	return m.selector
}

// Counts reports current resource totals for diagnostics and invariants.
func (m *Manager) Counts() (producers, receiveTransports, consumers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	producers = len(m.producers)
	receiveTransports = len(m.recv)
	for _, group := range m.recv {
		consumers += len(group.consumers)
	}
	return
}

func (m *Manager) HasSendTransport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send != nil
}

func (m *Manager) HasProducer(mediaType signaling.MediaType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	producer, ok := m.producers[mediaType]
	return ok && !producer.Closed()
}

func (m *Manager) publish(event eventbus.Event) {
	if m.opts.Bus == nil {
		return
	}
	if err := m.opts.Bus.Publish(event); err != nil {
		log.Debug().Err(err).Str("service", "rtc").Msg("publish event")
	}
}
