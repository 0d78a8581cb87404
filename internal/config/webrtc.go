package config

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

const (
	frameMarking = "urn:ietf:params:rtp-hdrext:framemarking"
)

var DefaultStunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type RTCConfig struct {
	ICEPortRangeStart uint32      `mapstructure:"ice_port_range_start"`
	ICEPortRangeEnd   uint32      `mapstructure:"ice_port_range_end"`
	StunServers       []string    `mapstructure:"stun_servers"`
	EnabledCodecs     []CodecSpec `mapstructure:"enabled_codecs"`
}

type CodecSpec struct {
	Mime     string `mapstructure:"mime"`
	FmtpLine string `mapstructure:"fmtp_line"`
}

func defaultCodecs() []CodecSpec {
	return []CodecSpec{
		{Mime: webrtc.MimeTypeOpus},
		{Mime: webrtc.MimeTypeVP8},
	}
}

type WebRTCConfig struct {
	Configuration webrtc.Configuration
	SettingEngine webrtc.SettingEngine
	Publisher     DirectionConfig
	Subscriber    DirectionConfig
}

type RTPHeaderExtensionConfig struct {
	Audio []string
	Video []string
}

type RTCPFeedbackConfig struct {
	Audio []webrtc.RTCPFeedback
	Video []webrtc.RTCPFeedback
}

type DirectionConfig struct {
	RTPHeaderExtension RTPHeaderExtensionConfig
	RTCPFeedback       RTCPFeedbackConfig
}

func NewWebRTCConfig(rtcConfig RTCConfig) (*WebRTCConfig, error) {
	stunServers := rtcConfig.StunServers
	if len(stunServers) == 0 {
		stunServers = DefaultStunServers
	}

	c := webrtc.Configuration{
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	s := webrtc.SettingEngine{}

	// Use only UDP
	networkTypes := []webrtc.NetworkType{
		webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6,
	}
	if err := s.SetEphemeralUDPPortRange(uint16(rtcConfig.ICEPortRangeStart), uint16(rtcConfig.ICEPortRangeEnd)); err != nil {
		return nil, err
	}
	s.SetNetworkTypes(networkTypes)

	publisherConfig := DirectionConfig{
		RTPHeaderExtension: RTPHeaderExtensionConfig{
			Audio: []string{
				sdp.SDESMidURI,
				sdp.SDESRTPStreamIDURI,
				sdp.AudioLevelURI,
			},
			Video: []string{
				sdp.SDESMidURI,
				sdp.SDESRTPStreamIDURI,
				sdp.TransportCCURI,
				frameMarking,
			},
		},
		RTCPFeedback: RTCPFeedbackConfig{
			Video: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBGoogREMB},
				{Type: webrtc.TypeRTCPFBTransportCC},
				{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
	}

	subscriberConfig := DirectionConfig{
		RTPHeaderExtension: RTPHeaderExtensionConfig{
			Audio: []string{sdp.SDESMidURI},
			Video: []string{sdp.SDESMidURI, sdp.SDESRTPStreamIDURI},
		},
		RTCPFeedback: RTCPFeedbackConfig{
			Video: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
	}

	return &WebRTCConfig{
		Configuration: c,
		SettingEngine: s,
		Publisher:     publisherConfig,
		Subscriber:    subscriberConfig,
	}, nil
}
