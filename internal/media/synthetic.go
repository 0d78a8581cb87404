package media

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

const sampleInterval = 20 * time.Millisecond

// SyntheticProvider produces generated tracks for headless runs and tests.
// Real capture hardware sits behind the same Provider interface in the
// embedding application.
type SyntheticProvider struct {
	mu       sync.Mutex
	devices  []Device
	onChange func()
}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{
		devices: []Device{
			{ID: "default-mic", Label: "Synthetic Microphone", Kind: AudioInput},
			{ID: "default-cam", Label: "Synthetic Camera", Kind: VideoInput},
			{ID: "default-speaker", Label: "Synthetic Speaker", Kind: AudioOutput},
		},
	}
}

func (p *SyntheticProvider) AcquireMicrophone(ctx context.Context, deviceID string) (Track, error) {
	if err := p.checkDevice(deviceID, AudioInput); err != nil {
		return nil, err
	}
	return newSyntheticTrack(KindAudio, webrtc.MimeTypeOpus)
}

func (p *SyntheticProvider) AcquireCamera(ctx context.Context, deviceID string) (Track, error) {
	if err := p.checkDevice(deviceID, VideoInput); err != nil {
		return nil, err
	}
	return newSyntheticTrack(KindVideo, webrtc.MimeTypeVP8)
}

func (p *SyntheticProvider) AcquireScreen(ctx context.Context) (Track, error) {
	return newSyntheticTrack(KindVideo, webrtc.MimeTypeVP8)
}

func (p *SyntheticProvider) EnumerateDevices() []Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Device(nil), p.devices...)
}

func (p *SyntheticProvider) OnDeviceChange(f func()) {
	p.mu.Lock()
	p.onChange = f
	p.mu.Unlock()
}

// SetDevices replaces the device list and fires the change callback, the way
// plugging or unplugging hardware would.
func (p *SyntheticProvider) SetDevices(devices []Device) {
	p.mu.Lock()
	p.devices = append([]Device(nil), devices...)
	onChange := p.onChange
	p.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (p *SyntheticProvider) checkDevice(deviceID string, kind DeviceKind) error {
	if deviceID == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		if d.ID == deviceID && d.Kind == kind {
			return nil
		}
	}
	return ErrDeviceNotFound
}

type syntheticTrack struct {
	id    string
	kind  Kind
	local *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	once  sync.Once
}

func newSyntheticTrack(kind Kind, mimeType string) (*syntheticTrack, error) {
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		id,
		"ezcare-"+string(kind),
	)
	if err != nil {
		return nil, err
	}

	t := &syntheticTrack{
		id:    id,
		kind:  kind,
		local: local,
		stop:  make(chan struct{}),
	}
	go t.pump()

	return t, nil
}

// pump keeps the track alive with empty samples until Stop.
func (t *syntheticTrack) pump() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sample := pionmedia.Sample{Data: []byte{0x00}, Duration: sampleInterval}
			if err := t.local.WriteSample(sample); err != nil {
				return
			}
		case <-t.stop:
			return
		}
	}
}

func (t *syntheticTrack) ID() string {
	return t.id
}

func (t *syntheticTrack) Kind() Kind {
	return t.kind
}

func (t *syntheticTrack) Local() webrtc.TrackLocal {
	return t.local
}

func (t *syntheticTrack) Stop() {
	t.once.Do(func() {
		close(t.stop)
	})
}
