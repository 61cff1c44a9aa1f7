package media

import (
	"encoding/json"
	"strings"
)

// Codec describes one codec a router negotiates. The default broadcast set
// is Opus audio and VP8 video.
type Codec struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	PayloadType uint8  `json:"preferredPayloadType,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

// rtpCapabilities is the shape of the capability blob exchanged with
// clients: the codec list is all the coordinator ever needs to compare.
type rtpCapabilities struct {
	Codecs []Codec `json:"codecs"`
}

func marshalCapabilities(codecs []Codec) json.RawMessage {
	data, err := json.Marshal(rtpCapabilities{Codecs: codecs})
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// capsCompatible reports whether a client advertising rtpCapabilities can
// receive media of the given kind from a router configured with codecs.
// Compatibility means the client lists at least one codec whose MIME type
// matches a router codec of that kind; clock rate and channels must agree
// when the client states them.
func capsCompatible(codecs []Codec, kind string, raw json.RawMessage) bool {
	var caps rtpCapabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		return false
	}
	for _, want := range caps.Codecs {
		for _, have := range codecs {
			if have.Kind != kind {
				continue
			}
			if !strings.EqualFold(have.MimeType, want.MimeType) {
				continue
			}
			if want.ClockRate != 0 && want.ClockRate != have.ClockRate {
				continue
			}
			if want.Channels != 0 && have.Channels != 0 && want.Channels != have.Channels {
				continue
			}
			return true
		}
	}
	return false
}

// codecForKind returns the first configured codec of a kind.
func codecForKind(codecs []Codec, kind string) (Codec, bool) {
	for _, c := range codecs {
		if c.Kind == kind {
			return c, true
		}
	}
	return Codec{}, false
}
