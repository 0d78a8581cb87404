package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/telemetry"
)

var (
	ErrSessionClosed = errors.New("room: session is closed")
	ErrInvalidState  = errors.New("room: operation is not legal in the current state")
	ErrRoomNotFound  = errors.New("room: the server does not know this room")
	ErrRoomClosed    = errors.New("room: the room is not accepting join requests")
	ErrNotHost       = errors.New("room: operation requires the host")
)

// JoinError is a recoverable admission failure: the session stays in the
// waiting room and the message is surfaced for display.
type JoinError struct {
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("room: join refused: %s", e.Message)
}

// Channel is the signaling connection lifecycle the session drives.
type Channel interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	Handle(method signaling.Method, h signaling.Handler)
	OnReconnect(f func())
	OnDown(f func(error))
}

// Signaler is the slice of the typed signaling client the session uses.
type Signaler interface {
	JoinWaitingRoom(ctx context.Context, roomID core.RoomID) (*core.WaitingRoomSnapshot, error)
	RequestToJoin(ctx context.Context, userID core.PeerID) (bool, error)
	ApproveJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error)
	RejectJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error)
	CancelJoinRequest(userID core.PeerID) error
	ExitWaitingRoom(userID core.PeerID) error
	JoinRoom(ctx context.Context, params signaling.JoinRoomParams) (*signaling.JoinRoomResult, error)
	GetProducers(ctx context.Context) ([]signaling.ProducerInfo, error)
	SendChat(authorID core.PeerID, content string) error
	PublishPeerState(state core.PeerState) error
	KickUser(userID core.PeerID) error
	KickUserToWaitingRoom(userID core.PeerID) error
	BlockUser(userID core.PeerID, name string) error
	UnblockUser(ctx context.Context, userID core.PeerID) (core.EventResult, error)
	CloseAudioByHost(userIDs []core.PeerID) error
	CloseVideoByHost(userIDs []core.PeerID) error
}

// MediaSession is the slice of the media transport manager the session
// dispatches into.
type MediaSession interface {
	SetRTPCapabilities(caps json.RawMessage)
	EnableMicrophone(ctx context.Context) error
	EnableCamera(ctx context.Context) error
	DisableMicrophone()
	DisableCamera()
	StartScreenShare(ctx context.Context) error
	StopScreenShare()
	ConsumeRemote(ctx context.Context, info signaling.ProducerInfo) error
	HandleProducerClosed(params signaling.ProducerClosedParams)
	HandleRemoteShareStopped(peerID core.PeerID)
	HandleShareScreenStopped()
	RemovePeer(peerID core.PeerID)
	CloseAll()
}

type Options struct {
	SelfID   core.PeerID
	SelfName string
	RoomID   core.RoomID

	Channel  Channel
	Signaler Signaler
	Media    MediaSession
	Bus      eventbus.Publisher

	// QueueSize bounds the dispatch queue; 0 means the default.
	QueueSize int
	// OpTimeout bounds signaling requests issued from push handlers.
	OpTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 10 * time.Second
	}
}

type admissionStatus int

const (
	admissionNone admissionStatus = iota
	admissionPending
	admissionCancelled
	admissionApproved
	admissionRejected
)

// Session is the room-session coordinator. All state mutation funnels through
// a single dispatch queue: one goroutine applies local actions and remote
// events in arrival order, so no lock ordering exists between the registry,
// the media manager and the state machine.
type Session struct {
	opts     Options
	registry *Registry

	mu             sync.RWMutex
	state          core.SessionState
	snapshot       *core.WaitingRoomSnapshot
	self           core.PeerState
	admission      admissionStatus
	passwordInput  string
	failureMessage string

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(opts Options) *Session {
	opts.withDefaults()
	s := &Session{
		opts:     opts,
		registry: NewRegistry(),
		state:    core.SessionCreated,
		self:     core.PeerState{UID: opts.SelfID, Name: opts.SelfName},
		tasks:    make(chan func(), opts.QueueSize),
		done:     make(chan struct{}),
	}
	s.attachHandlers()
	opts.Channel.OnReconnect(s.handleReconnected)
	opts.Channel.OnDown(s.handleChannelDown)
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			return
		}
	}
}

// do enqueues without blocking the caller's result; used by push handlers so
// remote events apply in arrival order.
func (s *Session) do(task func()) {
	select {
	case s.tasks <- task:
	case <-s.done:
	}
}

// perform enqueues a local action and waits for its result.
func (s *Session) perform(task func() error) error {
	result := make(chan error, 1)
	select {
	case s.tasks <- func() { result <- task() }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		// the task may have ended the session itself; its result wins
		select {
		case err := <-result:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// Connect dials the signaling channel and enters the waiting room. A server
// that does not know the room id puts the session in its terminal state.
func (s *Session) Connect(ctx context.Context) error {
	return s.perform(func() error { return s.connect(ctx) })
}

func (s *Session) connect(ctx context.Context) error {
	state := s.State()
	if state != core.SessionCreated && state != core.SessionConnected {
		return ErrInvalidState
	}

	if state == core.SessionCreated {
		if err := s.opts.Channel.Connect(ctx); err != nil {
			return err
		}
		s.setState(core.SessionConnected)
		telemetry.SessionStarted()
	}

	snapshot, err := s.opts.Signaler.JoinWaitingRoom(ctx, s.opts.RoomID)
	if err != nil {
		// stays Connected; Connect may be retried
		return err
	}
	if snapshot == nil {
		s.setState(core.SessionNotExists)
		return ErrRoomNotFound
	}

	s.mu.Lock()
	s.snapshot = snapshot.Clone()
	s.mu.Unlock()
	s.registry.SeedBlacklist(snapshot.Blacklist)

	s.setState(core.SessionWaitingRoom)
	s.publish(eventbus.Event{Kind: eventbus.WaitingRoomUpdated, RoomID: s.opts.RoomID})

	log.Info().
		Str("service", "room").
		Str("roomID", string(s.opts.RoomID)).
		Int("joiners", len(snapshot.JoinerList)).
		Msg("entered waiting room")

	return nil
}

// Join performs the join handshake directly, bypassing the admission request.
// Hosts and rooms without an admission gate use this path.
func (s *Session) Join(ctx context.Context, password string) error {
	return s.perform(func() error { return s.joinRoom(ctx, password) })
}

func (s *Session) joinRoom(ctx context.Context, password string) error {
	if s.State() != core.SessionWaitingRoom {
		return ErrInvalidState
	}

	res, err := s.opts.Signaler.JoinRoom(ctx, signaling.JoinRoomParams{
		UserID:            s.opts.SelfID,
		RoomPasswordInput: password,
	})
	if err != nil {
		return err
	}
	if !res.OK() {
		s.setFailure(res.Message)
		s.publish(eventbus.Event{Kind: eventbus.ErrorRaised, Message: res.Message})
		return &JoinError{Message: res.Message}
	}

	if !s.setState(core.SessionJoined) {
		return ErrInvalidState
	}

	s.opts.Media.SetRTPCapabilities(res.RTPCapabilities)
	s.registry.SeedPeers(res.PeerStates)
	s.registry.SetAwaiting(res.AwaitingUserIDs)
	s.registry.SetJoining(res.JoiningUserIDs)

	// Local capture denial is tolerated: the peer joins without that producer.
	self := s.selfState()
	if err := s.opts.Media.EnableMicrophone(ctx); err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("microphone unavailable on join")
	} else {
		self.EnabledMicrophone = true
	}
	if err := s.opts.Media.EnableCamera(ctx); err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("camera unavailable on join")
	} else {
		self.EnabledCamera = true
	}
	s.updateSelf(self)

	producers, err := s.opts.Signaler.GetProducers(ctx)
	if err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("producer discovery failed")
	}
	for _, producer := range producers {
		if producer.UserID == s.opts.SelfID {
			continue
		}
		if err := s.opts.Media.ConsumeRemote(ctx, producer); err != nil {
			// one failed consume does not fail the join
			log.Warn().Err(err).
				Str("service", "room").
				Str("producerID", producer.ProducerID).
				Msg("consume failed")
		}
	}

	s.publish(eventbus.Event{Kind: eventbus.PeerJoined, RoomID: s.opts.RoomID, PeerID: s.opts.SelfID})

	return nil
}

// Leave tears the session down: cancel a pending admission request, release
// every media resource, close the channel.
func (s *Session) Leave() error {
	return s.perform(func() error {
		switch s.State() {
		case core.SessionJoined:
			s.opts.Media.CloseAll()
		case core.SessionWaitingRoom:
			s.mu.RLock()
			pending := s.admission == admissionPending
			s.mu.RUnlock()
			if pending {
				s.cancelJoin()
			}
			if err := s.opts.Signaler.ExitWaitingRoom(s.opts.SelfID); err != nil {
				log.Debug().Err(err).Str("service", "room").Msg("exit waiting room")
			}
		case core.SessionCreated, core.SessionNotExists:
			s.shutdownAsync()
			return nil
		}
		s.terminate("left")
		return nil
	})
}

// terminate releases everything and retires the dispatch loop. Runs inside a
// queued task.
func (s *Session) terminate(reason string) {
	s.opts.Media.CloseAll()
	s.registry.Reset()
	s.setState(core.SessionCreated)
	if err := s.opts.Channel.Close(); err != nil {
		log.Debug().Err(err).Str("service", "room").Msg("close channel")
	}
	telemetry.SessionStopped()
	s.publish(eventbus.Event{Kind: eventbus.SessionEnded, RoomID: s.opts.RoomID, Message: reason})
	s.shutdownAsync()
}

// shutdownAsync retires the loop after the current task finishes, so the
// caller still receives that task's result.
func (s *Session) shutdownAsync() {
	select {
	case s.tasks <- func() { s.shutdown() }:
	default:
		s.shutdown()
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

// demoteToWaiting is the kicked-to-waiting-room path: full media teardown,
// registry reset, fresh waiting-room snapshot. The channel stays up.
func (s *Session) demoteToWaiting() {
	s.opts.Media.CloseAll()
	s.registry.Reset()
	if !s.setState(core.SessionWaitingRoom) {
		return
	}

	s.mu.Lock()
	s.admission = admissionNone
	s.failureMessage = ""
	self := core.PeerState{UID: s.opts.SelfID, Name: s.opts.SelfName}
	s.self = self
	s.mu.Unlock()

	ctx, cancel := s.opCtx()
	defer cancel()
	snapshot, err := s.opts.Signaler.JoinWaitingRoom(ctx, s.opts.RoomID)
	if err != nil || snapshot == nil {
		log.Warn().Err(err).Str("service", "room").Msg("waiting room snapshot refresh failed")
	} else {
		s.mu.Lock()
		s.snapshot = snapshot.Clone()
		s.mu.Unlock()
		s.registry.SeedBlacklist(snapshot.Blacklist)
	}

	s.publish(eventbus.Event{Kind: eventbus.KickedToWaiting, RoomID: s.opts.RoomID, PeerID: s.opts.SelfID})
	s.publish(eventbus.Event{Kind: eventbus.WaitingRoomUpdated, RoomID: s.opts.RoomID})
}

// SendChat sends without local append; the log grows when the server echo
// arrives, keeping one ordering for everyone.
func (s *Session) SendChat(content string) error {
	return s.perform(func() error {
		if s.State() != core.SessionJoined {
			return ErrInvalidState
		}
		return s.opts.Signaler.SendChat(s.opts.SelfID, content)
	})
}

// SetMicrophoneEnabled toggles the local audio producer and broadcasts the
// resulting peer state.
func (s *Session) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	return s.perform(func() error {
		if s.State() != core.SessionJoined {
			return ErrInvalidState
		}
		if enabled {
			if err := s.opts.Media.EnableMicrophone(ctx); err != nil {
				return err
			}
		} else {
			s.opts.Media.DisableMicrophone()
		}
		self := s.selfState()
		self.EnabledMicrophone = enabled
		s.updateSelf(self)
		return nil
	})
}

func (s *Session) SetCameraEnabled(ctx context.Context, enabled bool) error {
	return s.perform(func() error {
		if s.State() != core.SessionJoined {
			return ErrInvalidState
		}
		if enabled {
			if err := s.opts.Media.EnableCamera(ctx); err != nil {
				return err
			}
		} else {
			s.opts.Media.DisableCamera()
		}
		self := s.selfState()
		self.EnabledCamera = enabled
		s.updateSelf(self)
		return nil
	})
}

func (s *Session) StartScreenShare(ctx context.Context) error {
	return s.perform(func() error {
		if s.State() != core.SessionJoined {
			return ErrInvalidState
		}
		return s.opts.Media.StartScreenShare(ctx)
	})
}

func (s *Session) StopScreenShare() error {
	return s.perform(func() error {
		if s.State() != core.SessionJoined {
			return ErrInvalidState
		}
		s.opts.Media.StopScreenShare()
		return nil
	})
}

// updateSelf stores and broadcasts the local peer state.
func (s *Session) updateSelf(self core.PeerState) {
	s.mu.Lock()
	s.self = self
	s.mu.Unlock()

	s.registry.UpsertPeer(self)
	if err := s.opts.Signaler.PublishPeerState(self); err != nil {
		log.Debug().Err(err).Str("service", "room").Msg("publish peer state")
	}
	s.publish(eventbus.Event{Kind: eventbus.PeerStateChanged, PeerID: self.UID})
}

// applyWaitingRoomEvent patches the stored snapshot; unrelated variants only
// surface their event.
func (s *Session) applyWaitingRoomEvent(ev WaitingRoomEvent) {
	s.mu.Lock()
	snapshot := s.snapshot.Clone()
	if snapshot == nil {
		s.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case PeerJoinedWaiting:
		present := false
		for _, joiner := range snapshot.JoinerList {
			if joiner.ID == e.Joiner.ID {
				present = true
				break
			}
		}
		if !present {
			snapshot.JoinerList = append(snapshot.JoinerList, e.Joiner)
		}
	case PeerExitedWaiting:
		kept := snapshot.JoinerList[:0]
		for _, joiner := range snapshot.JoinerList {
			if joiner.ID != e.PeerID {
				kept = append(kept, joiner)
			}
		}
		snapshot.JoinerList = kept
	case JoinersUpdated:
		snapshot.JoinerList = append([]core.Joiner(nil), e.Joiners...)
	case AdmissionApproved, AdmissionRejected, AdmissionCancelled:
		// admission variants carry no joiner-list change
	}

	s.snapshot = snapshot
	s.mu.Unlock()

	s.publish(eventbus.Event{Kind: eventbus.WaitingRoomUpdated, RoomID: s.opts.RoomID})
}

func (s *Session) handleReconnected() {
	s.do(func() {
		state := s.State()
		if state != core.SessionWaitingRoom && state != core.SessionJoined {
			return
		}
		ctx, cancel := s.opCtx()
		defer cancel()
		snapshot, err := s.opts.Signaler.JoinWaitingRoom(ctx, s.opts.RoomID)
		if err != nil || snapshot == nil {
			log.Warn().Err(err).Str("service", "room").Msg("snapshot refresh after reconnect failed")
			return
		}
		s.mu.Lock()
		s.snapshot = snapshot.Clone()
		s.mu.Unlock()
		s.registry.SeedBlacklist(snapshot.Blacklist)
		s.publish(eventbus.Event{Kind: eventbus.WaitingRoomUpdated, RoomID: s.opts.RoomID})
	})
}

// handleChannelDown runs once the reconnect budget is exhausted. Hardware
// resources must not outlive the connection, so the session ends.
func (s *Session) handleChannelDown(cause error) {
	s.do(func() {
		s.publish(eventbus.Event{Kind: eventbus.ErrorRaised, Message: cause.Error()})
		s.terminate("signaling channel down")
	})
}

func (s *Session) setState(next core.SessionState) bool {
	s.mu.Lock()
	if !s.state.CanTransition(next) {
		current := s.state
		s.mu.Unlock()
		log.Warn().
			Str("service", "room").
			Str("from", string(current)).
			Str("to", string(next)).
			Msg("illegal state transition rejected")
		return false
	}
	s.state = next
	s.mu.Unlock()

	s.publish(eventbus.Event{Kind: eventbus.StateChanged, RoomID: s.opts.RoomID, State: next})
	return true
}

func (s *Session) setFailure(message string) {
	s.mu.Lock()
	s.failureMessage = message
	s.mu.Unlock()
}

func (s *Session) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.OpTimeout)
}

func (s *Session) publish(event eventbus.Event) {
	if s.opts.Bus == nil {
		return
	}
	if err := s.opts.Bus.Publish(event); err != nil {
		log.Debug().Err(err).Str("service", "room").Msg("publish event")
	}
}

func (s *Session) State() core.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Snapshot() *core.WaitingRoomSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

func (s *Session) Registry() *Registry {
	return s.registry
}

func (s *Session) FailureMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failureMessage
}

func (s *Session) selfState() core.PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// IsHost reports whether the local peer owns the room, per the waiting-room
// snapshot.
func (s *Session) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot != nil && s.snapshot.MasterID == s.opts.SelfID
}
