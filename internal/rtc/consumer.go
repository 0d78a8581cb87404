package rtc

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

const rtcpPLIInterval = 3 * time.Second

// Consumer is one local decoder endpoint for a single remote producer. It is
// created server-side paused; the Manager resumes it right after
// instantiation or no media flows.
type Consumer struct {
	serverID   string
	producerID string
	peerID     core.PeerID
	kind       string
	appData    signaling.AppData
	transport  Transport

	mu            sync.Mutex
	resumed       bool
	closed        bool
	stop          chan struct{}
	bytesReceived uint64
}

func newConsumer(res *signaling.ConsumeResult, peerID core.PeerID, transport Transport) *Consumer {
	return &Consumer{
		serverID:   res.ServerConsumerID,
		producerID: res.ProducerID,
		peerID:     peerID,
		kind:       res.Kind,
		appData:    res.AppData,
		transport:  transport,
		stop:       make(chan struct{}),
	}
}

func (c *Consumer) ServerID() string {
	return c.serverID
}

func (c *Consumer) ProducerID() string {
	return c.producerID
}

func (c *Consumer) PeerID() core.PeerID {
	return c.peerID
}

func (c *Consumer) AppData() signaling.AppData {
	return c.appData
}

func (c *Consumer) Resumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *Consumer) markResumed() {
	c.mu.Lock()
	c.resumed = true
	c.mu.Unlock()
}

func (c *Consumer) BytesReceived() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesReceived
}

// attachTrack binds the remote track once the transport surfaces it: a drain
// loop accounts incoming RTP and a PLI loop keeps keyframes coming.
func (c *Consumer) attachTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	go c.drain(track)
	go c.requestKeyframes(track)
}

func (c *Consumer) drain(track *webrtc.TrackRemote) {
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		var pkt *rtp.Packet
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		c.mu.Lock()
		c.bytesReceived += uint64(len(pkt.Payload))
		c.mu.Unlock()
	}
}

// requestKeyframes sends a PLI on an interval so the remote producer pushes a
// keyframe at least every rtcpPLIInterval. PLI is a video concept; the loop
// never starts for audio consumers.
func (c *Consumer) requestKeyframes(track *webrtc.TrackRemote) {
	if c.kind != "video" {
		return
	}

	ticker := time.NewTicker(rtcpPLIInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.transport.WriteRTCP(
				[]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}},
			); err != nil {
				log.Debug().Err(err).Str("service", "rtc").Str("consumerID", c.serverID).Msg("write PLI")
				return
			}
		case <-c.stop:
			return
		}
	}
}

// Close is idempotent: a second close has no effect and no side effects.
func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
