package media

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCodecs = []Codec{
	{Kind: KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111},
	{Kind: KindVideo, MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96},
}

func TestCapsCompatible(t *testing.T) {
	tests := []struct {
		name string
		kind string
		caps string
		want bool
	}{
		{
			name: "matching video codec",
			kind: KindVideo,
			caps: `{"codecs":[{"mimeType":"video/VP8","clockRate":90000}]}`,
			want: true,
		},
		{
			name: "mime type is case insensitive",
			kind: KindVideo,
			caps: `{"codecs":[{"mimeType":"video/vp8"}]}`,
			want: true,
		},
		{
			name: "clock rate omitted matches",
			kind: KindAudio,
			caps: `{"codecs":[{"mimeType":"audio/opus"}]}`,
			want: true,
		},
		{
			name: "clock rate mismatch",
			kind: KindVideo,
			caps: `{"codecs":[{"mimeType":"video/VP8","clockRate":48000}]}`,
			want: false,
		},
		{
			name: "kind mismatch",
			kind: KindAudio,
			caps: `{"codecs":[{"mimeType":"video/VP8"}]}`,
			want: false,
		},
		{
			name: "unsupported codec",
			kind: KindVideo,
			caps: `{"codecs":[{"mimeType":"video/H264"}]}`,
			want: false,
		},
		{
			name: "channels mismatch",
			kind: KindAudio,
			caps: `{"codecs":[{"mimeType":"audio/opus","channels":1}]}`,
			want: false,
		},
		{
			name: "empty codec list",
			kind: KindVideo,
			caps: `{"codecs":[]}`,
			want: false,
		},
		{
			name: "malformed capabilities",
			kind: KindVideo,
			caps: `not json`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capsCompatible(testCodecs, tt.kind, json.RawMessage(tt.caps))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalCapabilities(t *testing.T) {
	raw := marshalCapabilities(testCodecs)

	var caps rtpCapabilities
	require.NoError(t, json.Unmarshal(raw, &caps))
	require.Len(t, caps.Codecs, 2)
	assert.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
	assert.Equal(t, "video/VP8", caps.Codecs[1].MimeType)
}

func TestCodecForKind(t *testing.T) {
	codec, ok := codecForKind(testCodecs, KindVideo)
	require.True(t, ok)
	assert.Equal(t, "video/VP8", codec.MimeType)

	_, ok = codecForKind(testCodecs, "text")
	assert.False(t, ok)
}
