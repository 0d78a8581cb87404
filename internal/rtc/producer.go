package rtc

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/media"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

// Producer is one local encoder endpoint. It is exclusively owned by the
// session's send transport and mutated only through the Manager.
type Producer struct {
	id        string
	appData   signaling.AppData
	transport Transport

	mu     sync.Mutex
	track  media.Track
	sender Sender
	closed bool
}

func newProducer(id string, appData signaling.AppData, transport Transport, track media.Track, sender Sender) *Producer {
	return &Producer{
		id:        id,
		appData:   appData,
		transport: transport,
		track:     track,
		sender:    sender,
	}
}

func (p *Producer) ID() string {
	return p.id
}

func (p *Producer) AppData() signaling.AppData {
	return p.appData
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ReplaceTrack swaps the active track in place, keeping the producer and its
// server-side identity. The previous track is stopped.
func (p *Producer) ReplaceTrack(track media.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		track.Stop()
		return nil
	}

	if err := p.sender.ReplaceTrack(track.Local()); err != nil {
		track.Stop()
		return err
	}

	old := p.track
	p.track = track
	old.Stop()

	return nil
}

// Close stops the track and unbinds the sender. Idempotent.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	track := p.track
	sender := p.sender
	p.mu.Unlock()

	if err := p.transport.RemoveSender(sender); err != nil {
		log.Debug().Err(err).Str("service", "rtc").Str("producerID", p.id).Msg("remove sender")
	}
	track.Stop()
}
