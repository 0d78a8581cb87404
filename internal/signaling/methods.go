package signaling

import (
	"encoding/json"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

// Method is a signaling wire method name. Request/ack pairs unless noted
// fire-and-forget; push methods are server-emitted with no ack.
type Method string

// Client-emitted requests.
const (
	JoinWaitingRoomMethod       Method = "join-waiting-room"
	RequestToJoinRoomMethod     Method = "requestToJoinRoom"
	ApproveJoiningRoomMethod    Method = "approveJoiningRoom"
	RejectJoiningRoomMethod     Method = "rejectJoiningRoom"
	JoinRoomMethod              Method = "joinRoom"
	CreateTransportMethod       Method = "createWebRtcTransport"
	TransportProduceMethod      Method = "transport-produce"
	ConsumeMethod               Method = "consume"
	GetProducersMethod          Method = "getProducers"
	UnblockUserMethod           Method = "unblockUser"
	DisconnectShareScreenMethod Method = "disconnect-other-share-screen"
)

// Client-emitted notifications (fire-and-forget).
const (
	CancelJoinRequestMethod  Method = "cancelJoinRequest"
	ProducerConnectedMethod  Method = "transport-producer-connected"
	ReceiverConnectedMethod  Method = "transport-receiver-connected"
	ConsumerResumeMethod     Method = "consumer-resume"
	SendChatMethod           Method = "send-chat"
	PeerStateChangedMethod   Method = "peer-state-changed"
	KickUserMethod           Method = "kick-user"
	KickToWaitingRoomMethod  Method = "kick-user-to-waiting-room"
	BlockUserMethod          Method = "block-user"
	CloseAudioByHostMethod   Method = "close-audio-by-host"
	CloseVideoByHostMethod   Method = "close-video-by-host"
	StopShareScreenMethod    Method = "broadcast-stop-share-screen"
	ProducerClosedMethod     Method = "producer-closed"
	ExitWaitingRoomMethod    Method = "exit-waiting-room"
)

// Server pushes (no ack). Several share wire names with the client
// notifications above: the server fans the instruction back out to the
// affected peers.
const (
	NewProducerPush        Method = "new-producer"
	ProducerClosedPush     Method = ProducerClosedMethod
	PeerJoinedRoomPush     Method = "other-peer-joined-room"
	PeerExitedRoomPush     Method = "other-peer-exited-room"
	PeerStateChangedPush   Method = PeerStateChangedMethod
	PeerDisconnectedPush   Method = "other-peer-disconnected"
	SendChatPush           Method = SendChatMethod
	KickUserPush           Method = KickUserMethod
	KickToWaitingRoomPush  Method = KickToWaitingRoomMethod
	CloseAudioByHostPush   Method = CloseAudioByHostMethod
	CloseVideoByHostPush   Method = CloseVideoByHostMethod
	StopShareScreenPush    Method = StopShareScreenMethod
	PeerApprovedPush       Method = "peer-approved-to-join"
	PeerRejectedPush       Method = "peer-rejected-to-join"
	UpdateRoomJoinersPush  Method = "update-room-joiners"
)

// MediaType tags a producer with its role. The same RTP kind can carry both
// camera and screen video; the tag is how the far side tells them apart.
type MediaType string

const (
	MediaAudio  MediaType = "audio"
	MediaCamera MediaType = "camera"
	MediaScreen MediaType = "screen"
)

// AppData travels with produce/consume operations.
type AppData struct {
	MediaType MediaType `json:"mediaType"`
}

func (a AppData) IsScreen() bool {
	return a.MediaType == MediaScreen
}

type JoinWaitingRoomParams struct {
	RoomID core.RoomID `json:"roomId"`
}

type RequestToJoinParams struct {
	UserID core.PeerID `json:"userId"`
}

// RequestToJoinResult reports whether the room currently accepts join
// requests. The wire field historically reads "existsRoom"; here it means
// "accepting requests", not literal room existence.
type RequestToJoinResult struct {
	ExistsRoom bool `json:"existsRoom"`
}

type AdmissionDecisionParams struct {
	UserID core.PeerID `json:"userId"`
}

type JoinRoomParams struct {
	UserID            core.PeerID `json:"userId"`
	RoomPasswordInput string      `json:"roomPasswordInput,omitempty"`
}

type JoinRoomResult struct {
	Type            string           `json:"type"`
	Message         string           `json:"message,omitempty"`
	RoomID          core.RoomID      `json:"roomId,omitempty"`
	RTPCapabilities json.RawMessage  `json:"rtpCapabilities,omitempty"`
	PeerStates      []core.PeerState `json:"peerStates,omitempty"`
	AwaitingUserIDs []core.PeerID    `json:"awaitingUserIds,omitempty"`
	JoiningUserIDs  []core.PeerID    `json:"joiningUserIds,omitempty"`
}

func (r JoinRoomResult) OK() bool {
	return r.Type == core.ResultSuccess
}

type CreateTransportParams struct {
	IsConsumer bool `json:"isConsumer"`
}

// TransportInfo is the server-side half of a WebRTC transport: everything the
// client needs to instantiate its local end. ICE and DTLS blobs are opaque to
// the coordinator and handed through to the media engine.
type TransportInfo struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

type ProduceParams struct {
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
	AppData       AppData         `json:"appData"`
}

type ProduceResult struct {
	ProducerID string `json:"producerId"`
}

type ProducerConnectedParams struct {
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

type ReceiverConnectedParams struct {
	DTLSParameters           json.RawMessage `json:"dtlsParameters"`
	ServerReceiveTransportID string          `json:"serverReceiveTransportId"`
}

type ConsumeParams struct {
	RTPCapabilities          json.RawMessage `json:"rtpCapabilities"`
	RemoteProducerID         string          `json:"remoteProducerId"`
	ServerReceiveTransportID string          `json:"serverReceiveTransportId"`
	RemoteAppData            AppData         `json:"remoteAppData"`
}

// ConsumeResult carries parameters for the local consumer. The consumer is
// created server-side paused; a consumer-resume notification is mandatory or
// no media flows.
type ConsumeResult struct {
	ServerConsumerID string          `json:"serverConsumerId"`
	ProducerID       string          `json:"producerId"`
	Kind             string          `json:"kind"`
	RTPParameters    json.RawMessage `json:"rtpParameters"`
	AppData          AppData         `json:"appData"`
	Error            string          `json:"error,omitempty"`
}

type ConsumerResumeParams struct {
	ServerConsumerID string `json:"serverConsumerId"`
}

type ProducerInfo struct {
	ProducerID string      `json:"producerId"`
	UserID     core.PeerID `json:"userId"`
	AppData    AppData     `json:"appData"`
}

type ProducerClosedParams struct {
	RemoteProducerID string      `json:"remoteProducerId"`
	UserID           core.PeerID `json:"userId"`
}

type ChatParams struct {
	ID       string      `json:"id,omitempty"`
	AuthorID core.PeerID `json:"authorId"`
	Content  string      `json:"content"`
	SentAt   string      `json:"sentAt,omitempty"`
}

type PeerRefParams struct {
	UserID core.PeerID `json:"userId"`
	Name   string      `json:"name,omitempty"`
}

type CloseMediaParams struct {
	UserIDs []core.PeerID `json:"userIds"`
}

type UpdateRoomJoinersParams struct {
	JoinerList []core.Joiner `json:"joinerList"`
	// nil means "unchanged"; an empty list clears the awaiting set.
	AwaitingUserIDs []core.PeerID `json:"awaitingUserIds"`
}

type AdmissionPushParams struct {
	UserID  core.PeerID `json:"userId"`
	Message string      `json:"message,omitempty"`
}
