package eventbus

import (
	"github.com/nats-io/nats.go"
)

// NATSBridge mirrors domain events to a NATS subject per room.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
}

func NewNATSBridge(natsAddr, subject string) (*NATSBridge, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = "ezcare.room"
	}
	return &NATSBridge{nc: nc, subject: subject}, nil
}

func (b *NATSBridge) Publish(event Event) error {
	msg, err := event.ToJSON()
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject+"."+string(event.RoomID)+".events", msg)
}

func (b *NATSBridge) Close() error {
	return b.nc.Drain()
}
