package core

// PeerState is the published device state of one participant. It is upserted
// by UID: at most one entry per UID exists in a registry.
type PeerState struct {
	UID               PeerID `json:"uid"`
	Name              string `json:"name"`
	EnabledMicrophone bool   `json:"enabledMicrophone"`
	EnabledCamera     bool   `json:"enabledCamera"`
	EnabledHeadset    bool   `json:"enabledHeadset"`
}
