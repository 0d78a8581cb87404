package signaling

import (
	"context"
	"encoding/json"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

// Client is the typed surface over one Channel. Every method maps to exactly
// one wire operation of the signaling protocol.
type Client struct {
	ch *Channel
}

func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

func (c *Client) Channel() *Channel {
	return c.ch
}

func (c *Client) Connected() bool {
	return c.ch.Connected()
}

// JoinWaitingRoom requests the waiting-room snapshot for a room. A nil
// snapshot with nil error means the server did not know the room id.
func (c *Client) JoinWaitingRoom(ctx context.Context, roomID core.RoomID) (*core.WaitingRoomSnapshot, error) {
	raw, err := c.ch.Request(ctx, JoinWaitingRoomMethod, JoinWaitingRoomParams{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	snapshot := &core.WaitingRoomSnapshot{}
	if err := json.Unmarshal(raw, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RequestToJoin asks the host for admission. The result reports whether the
// room currently accepts join requests.
func (c *Client) RequestToJoin(ctx context.Context, userID core.PeerID) (bool, error) {
	raw, err := c.ch.Request(ctx, RequestToJoinRoomMethod, RequestToJoinParams{UserID: userID})
	if err != nil {
		return false, err
	}
	res := RequestToJoinResult{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, err
	}
	return res.ExistsRoom, nil
}

func (c *Client) ApproveJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	return c.decide(ctx, ApproveJoiningRoomMethod, userID)
}

func (c *Client) RejectJoining(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	return c.decide(ctx, RejectJoiningRoomMethod, userID)
}

func (c *Client) decide(ctx context.Context, method Method, userID core.PeerID) (core.EventResult, error) {
	raw, err := c.ch.Request(ctx, method, AdmissionDecisionParams{UserID: userID})
	if err != nil {
		return core.EventResult{}, err
	}
	res := core.EventResult{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return core.EventResult{}, err
	}
	return res, nil
}

func (c *Client) CancelJoinRequest(userID core.PeerID) error {
	return c.ch.Notify(CancelJoinRequestMethod, RequestToJoinParams{UserID: userID})
}

func (c *Client) ExitWaitingRoom(userID core.PeerID) error {
	return c.ch.Notify(ExitWaitingRoomMethod, RequestToJoinParams{UserID: userID})
}

func (c *Client) JoinRoom(ctx context.Context, params JoinRoomParams) (*JoinRoomResult, error) {
	raw, err := c.ch.Request(ctx, JoinRoomMethod, params)
	if err != nil {
		return nil, err
	}
	res := &JoinRoomResult{}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) CreateTransport(ctx context.Context, isConsumer bool) (*TransportInfo, error) {
	raw, err := c.ch.Request(ctx, CreateTransportMethod, CreateTransportParams{IsConsumer: isConsumer})
	if err != nil {
		return nil, err
	}
	info := &TransportInfo{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) Produce(ctx context.Context, params ProduceParams) (string, error) {
	raw, err := c.ch.Request(ctx, TransportProduceMethod, params)
	if err != nil {
		return "", err
	}
	res := ProduceResult{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	return res.ProducerID, nil
}

func (c *Client) ProducerConnected(dtlsParameters json.RawMessage) error {
	return c.ch.Notify(ProducerConnectedMethod, ProducerConnectedParams{DTLSParameters: dtlsParameters})
}

func (c *Client) ReceiverConnected(dtlsParameters json.RawMessage, serverTransportID string) error {
	return c.ch.Notify(ReceiverConnectedMethod, ReceiverConnectedParams{
		DTLSParameters:           dtlsParameters,
		ServerReceiveTransportID: serverTransportID,
	})
}

func (c *Client) Consume(ctx context.Context, params ConsumeParams) (*ConsumeResult, error) {
	raw, err := c.ch.Request(ctx, ConsumeMethod, params)
	if err != nil {
		return nil, err
	}
	res := &ConsumeResult{}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) ConsumerResume(serverConsumerID string) error {
	return c.ch.Notify(ConsumerResumeMethod, ConsumerResumeParams{ServerConsumerID: serverConsumerID})
}

func (c *Client) GetProducers(ctx context.Context) ([]ProducerInfo, error) {
	raw, err := c.ch.Request(ctx, GetProducersMethod, nil)
	if err != nil {
		return nil, err
	}
	producers := []ProducerInfo{}
	if err := json.Unmarshal(raw, &producers); err != nil {
		return nil, err
	}
	return producers, nil
}

// DisconnectOtherShareScreen asks the server to stop the currently active
// remote screen share. The caller must not start its own share unless this
// succeeds.
func (c *Client) DisconnectOtherShareScreen(ctx context.Context) error {
	_, err := c.ch.Request(ctx, DisconnectShareScreenMethod, nil)
	return err
}

func (c *Client) BroadcastStopShareScreen() error {
	return c.ch.Notify(StopShareScreenMethod, nil)
}

func (c *Client) ProducerClosed(producerID string) error {
	return c.ch.Notify(ProducerClosedMethod, ProducerClosedParams{RemoteProducerID: producerID})
}

func (c *Client) SendChat(authorID core.PeerID, content string) error {
	return c.ch.Notify(SendChatMethod, ChatParams{AuthorID: authorID, Content: content})
}

func (c *Client) PublishPeerState(state core.PeerState) error {
	return c.ch.Notify(PeerStateChangedMethod, state)
}

func (c *Client) KickUser(userID core.PeerID) error {
	return c.ch.Notify(KickUserMethod, PeerRefParams{UserID: userID})
}

func (c *Client) KickUserToWaitingRoom(userID core.PeerID) error {
	return c.ch.Notify(KickToWaitingRoomMethod, PeerRefParams{UserID: userID})
}

func (c *Client) BlockUser(userID core.PeerID, name string) error {
	return c.ch.Notify(BlockUserMethod, PeerRefParams{UserID: userID, Name: name})
}

func (c *Client) UnblockUser(ctx context.Context, userID core.PeerID) (core.EventResult, error) {
	return c.decide(ctx, UnblockUserMethod, userID)
}

func (c *Client) CloseAudioByHost(userIDs []core.PeerID) error {
	return c.ch.Notify(CloseAudioByHostMethod, CloseMediaParams{UserIDs: userIDs})
}

func (c *Client) CloseVideoByHost(userIDs []core.PeerID) error {
	return c.ch.Notify(CloseVideoByHostMethod, CloseMediaParams{UserIDs: userIDs})
}
