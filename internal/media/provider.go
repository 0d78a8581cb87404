package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v3"
)

var (
	// ErrPermissionDenied means the user denied or cancelled capture. Not an
	// error state for the session: the producer simply stays absent.
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type DeviceKind string

const (
	AudioInput  DeviceKind = "audioinput"
	VideoInput  DeviceKind = "videoinput"
	AudioOutput DeviceKind = "audiooutput"
)

// Device describes one capture or playback device.
type Device struct {
	ID    string
	Label string
	Kind  DeviceKind
}

// Track is one acquired local media track. Stop must release the underlying
// hardware resource and is idempotent.
type Track interface {
	ID() string
	Kind() Kind
	Local() webrtc.TrackLocal
	Stop()
}

// Provider acquires raw local media. Acquisition may suspend on user
// permission prompts and is cancellable through ctx.
type Provider interface {
	AcquireMicrophone(ctx context.Context, deviceID string) (Track, error)
	AcquireCamera(ctx context.Context, deviceID string) (Track, error)
	AcquireScreen(ctx context.Context) (Track, error)
	EnumerateDevices() []Device
	OnDeviceChange(func())
}
