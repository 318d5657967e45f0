package m3u8

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterURL = "https://cdn.example.com/stream/master.m3u8"

const masterWithAudio = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en",DEFAULT=YES,URI="audio/en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="Deutsch",LANGUAGE="de",URI="https://other.example.com/de.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="Commentary",LANGUAGE="en"
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="English",URI="subs/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=800000,AVERAGE-BANDWIDTH=700000,RESOLUTION=854x480,CODECS="avc1.4d401e,mp4a.40.2",AUDIO="aud"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,FRAME-RATE=29.970,AUDIO="aud"
hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
https://mirror.example.com/720/index.m3u8
`

func TestParseMasterScenario(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1920x1080\nvariant_1080p.m3u8\n"

	doc, err := Parse(masterURL, text)
	require.NoError(t, err)
	require.Equal(t, KindMaster, doc.Kind)
	require.NotNil(t, doc.Master)
	require.Nil(t, doc.Media)
	require.Len(t, doc.Master.Variants, 1)

	v := doc.Master.Variants[0]
	assert.Equal(t, "https://cdn.example.com/stream/variant_1080p.m3u8", v.URL)
	assert.Equal(t, uint64(1280000), v.Bandwidth)
	assert.Equal(t, "1080p", v.QualityLabel)
	assert.Equal(t, &Resolution{Width: 1920, Height: 1080}, v.Resolution)
}

func TestParseMaster(t *testing.T) {
	doc, err := Parse(masterURL, masterWithAudio)
	require.NoError(t, err)
	require.Equal(t, RuleStreamInf, doc.Rule)

	variants := doc.Master.Variants
	require.Len(t, variants, 3)

	assert.Equal(t, "https://cdn.example.com/stream/hd/index.m3u8", variants[0].URL)
	assert.Equal(t, uint64(5000000), variants[0].Bandwidth)
	require.NotNil(t, variants[0].FrameRate)
	assert.InDelta(t, 29.97, *variants[0].FrameRate, 1e-9)
	assert.Equal(t, "aud", variants[0].AudioGroupID)

	assert.Equal(t, "https://mirror.example.com/720/index.m3u8", variants[1].URL)
	assert.Equal(t, "720p", variants[1].QualityLabel)
	assert.Nil(t, variants[1].FrameRate)

	// AVERAGE-BANDWIDTH must not shadow BANDWIDTH
	assert.Equal(t, uint64(800000), variants[2].Bandwidth)
	assert.Equal(t, "avc1.4d401e,mp4a.40.2", variants[2].Codecs)
	assert.Equal(t, "480p", variants[2].QualityLabel)

	tracks := doc.Master.AudioTracks
	require.Len(t, tracks, 2, "tracks without URI and non-audio renditions are dropped")
	assert.Equal(t, AudioTrackRef{
		GroupID:  "aud",
		Name:     "English",
		Language: "en",
		URI:      "https://cdn.example.com/stream/audio/en.m3u8",
		Default:  true,
	}, tracks[0])
	assert.Equal(t, "https://other.example.com/de.m3u8", tracks[1].URI)
	assert.False(t, tracks[1].Default)
}

func TestParseMasterBandwidthOrdering(t *testing.T) {
	text := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=100
a.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=300
b.m3u8
#EXT-X-STREAM-INF:RESOLUTION=640x360
c.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=300
d.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=notanumber
e.m3u8
`
	doc, err := Parse(masterURL, text)
	require.NoError(t, err)

	variants := doc.Master.Variants
	require.Len(t, variants, 5)
	for i := 0; i+1 < len(variants); i++ {
		assert.GreaterOrEqual(t, variants[i].Bandwidth, variants[i+1].Bandwidth)
	}

	var names []string
	for _, v := range variants {
		names = append(names, v.URL[strings.LastIndex(v.URL, "/")+1:])
	}
	// ties keep their original order
	assert.Equal(t, []string{"b.m3u8", "d.m3u8", "a.m3u8", "c.m3u8", "e.m3u8"}, names)
}

func TestParseMasterSkipsCommentsBeforeURI(t *testing.T) {
	text := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=100

# a comment
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00Z
hls/720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=200
#EXT-X-STREAM-INF:BANDWIDTH=300
hls/4k.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=400
`
	doc, err := Parse(masterURL, text)
	require.NoError(t, err)

	variants := doc.Master.Variants
	require.Len(t, variants, 2)
	assert.Equal(t, "https://cdn.example.com/stream/hls/4k.m3u8", variants[0].URL)
	assert.Equal(t, "4K", variants[0].QualityLabel)
	assert.Equal(t, "https://cdn.example.com/stream/hls/720p.m3u8", variants[1].URL)
	assert.Equal(t, "720p", variants[1].QualityLabel)
}

func TestParseMasterMediaBetweenStreamInfAndURI(t *testing.T) {
	text := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,AUDIO="a"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="a",NAME="English",URI="a.m3u8"
v.m3u8
`
	doc, err := Parse(masterURL, text)
	require.NoError(t, err)

	require.Len(t, doc.Master.Variants, 1)
	assert.Equal(t, "https://cdn.example.com/stream/v.m3u8", doc.Master.Variants[0].URL)
	assert.Equal(t, "a", doc.Master.Variants[0].AudioGroupID)

	require.Len(t, doc.Master.AudioTracks, 1)
	assert.Equal(t, "https://cdn.example.com/stream/a.m3u8", doc.Master.AudioTracks[0].URI)
	assert.Equal(t, "a", doc.Master.AudioTracks[0].GroupID)
}

func TestParseMediaScenario(t *testing.T) {
	text := "#EXTINF:6.006,\nseg0.ts\n#EXTINF:6.006,\nseg1.ts\n"

	doc, err := Parse("https://cdn.example.com/stream/variant_1080p.m3u8", text)
	require.NoError(t, err)
	require.Equal(t, KindVariant, doc.Kind)
	require.Equal(t, RuleTransportStream, doc.Rule)
	require.Nil(t, doc.Master)

	media := doc.Media
	require.Len(t, media.Segments, 2)
	assert.Equal(t, 12.012, media.TotalDuration)
	assert.Equal(t, "https://cdn.example.com/stream/seg0.ts", media.Segments[0].URL)
	assert.Equal(t, "https://cdn.example.com/stream/seg1.ts", media.Segments[1].URL)
}

func TestParseMediaDurations(t *testing.T) {
	text := `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXTINF:9.009,title one
a.ts?token=1
b.ts
#EXTINF:4.5
#EXT-X-DISCONTINUITY
https://other.example.com/c.ts
#EXTINF:garbage,
d.ts
#EXT-X-ENDLIST
`
	doc, err := Parse("https://cdn.example.com/v/index.m3u8", text)
	require.NoError(t, err)

	segs := doc.Media.Segments
	require.Len(t, segs, 4)
	assert.Equal(t, 9.009, segs[0].Duration)
	assert.Equal(t, "https://cdn.example.com/v/a.ts?token=1", segs[0].URL)
	assert.Equal(t, 0.0, segs[1].Duration, "segment without EXTINF gets zero")
	assert.Equal(t, 4.5, segs[2].Duration)
	assert.Equal(t, "https://other.example.com/c.ts", segs[2].URL)
	assert.Equal(t, 0.0, segs[3].Duration)

	var sum float64
	for _, s := range segs {
		sum += s.Duration
	}
	assert.Equal(t, sum, doc.Media.TotalDuration)
}

func TestClassifyPlaylist(t *testing.T) {
	tests := []struct {
		name string
		url  string
		text string
		want Classification
	}{
		{
			name: "stream inf wins over everything",
			url:  "https://cdn.example.com/audio/master.m3u8",
			text: "#EXTINF:4,\na.aac\n#EXT-X-STREAM-INF:BANDWIDTH=1\nv.m3u8\nb.ts\n",
			want: Classification{KindMaster, RuleStreamInf},
		},
		{
			name: "aac segments",
			url:  "https://cdn.example.com/v/index.m3u8",
			text: "#EXTINF:4,\nseg0.aac\n",
			want: Classification{KindAudio, RuleAudioSegment},
		},
		{
			name: "m4a segments with query",
			url:  "https://cdn.example.com/v/index.m3u8",
			text: "#EXTINF:4,\nseg0.M4A?sig=abc\n",
			want: Classification{KindAudio, RuleAudioSegment},
		},
		{
			name: "m4a init section",
			url:  "https://cdn.example.com/v/index.m3u8",
			text: "#EXT-X-MAP:URI=\"init.m4a\"\n#EXTINF:4,\nseg0.ts\n",
			want: Classification{KindAudio, RuleAudioSegment},
		},
		{
			name: "audio hint in url beats ts segments",
			url:  "https://cdn.example.com/snd_eng/index.m3u8",
			text: "#EXTINF:4,\nseg0.ts\n",
			want: Classification{KindAudio, RuleAudioURLHint},
		},
		{
			name: "ts segments",
			url:  "https://cdn.example.com/v/index.m3u8",
			text: "#EXTINF:4,\nseg0.ts?x=1\n",
			want: Classification{KindVariant, RuleTransportStream},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyPlaylist(tt.url, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAudioPlaylist(t *testing.T) {
	doc, err := Parse("https://cdn.example.com/a/index.m3u8", "#EXTINF:2.0,\nchunk0.aac\n#EXTINF:2.0,\nchunk1.aac\n")
	require.NoError(t, err)
	assert.Equal(t, KindAudio, doc.Kind)
	require.NotNil(t, doc.Media)
	assert.Len(t, doc.Media.Segments, 2)
	assert.Equal(t, 4.0, doc.Media.TotalDuration)
}

func TestParseUnrecognized(t *testing.T) {
	for _, text := range []string{
		"",
		"#EXTM3U\n#EXT-X-ENDLIST\n",
		"<html><body>not a playlist</body></html>",
		"#EXTINF:4,\nsegment.mp4\n",
	} {
		_, err := Parse("https://cdn.example.com/v/index.m3u8", text)
		assert.True(t, errors.Is(err, ErrUnrecognizedFormat), "text %q", text)
	}
}

func TestAudioFor(t *testing.T) {
	doc, err := Parse(masterURL, masterWithAudio)
	require.NoError(t, err)
	master := doc.Master

	best := master.BestVariant()
	require.NotNil(t, best)
	assert.Equal(t, "English", master.AudioFor(best).Name)

	noGroup := &VariantRef{}
	assert.Equal(t, "English", master.AudioFor(noGroup).Name)

	master.AudioTracks[0].Default = false
	master.AudioTracks[1].Default = true
	assert.Equal(t, "Deutsch", master.AudioFor(best).Name)

	otherGroup := &VariantRef{AudioGroupID: "missing"}
	assert.Equal(t, "English", master.AudioFor(otherGroup).Name)

	assert.Nil(t, (&MasterPlaylist{}).AudioFor(best))
	assert.Nil(t, (&MasterPlaylist{}).BestVariant())
}

func TestParseAttributes(t *testing.T) {
	attrs := parseAttributes(`#EXT-X-MEDIA:type=AUDIO,GROUP-ID="a,b",NAME="Main",default=YES,URI=bare.m3u8`, tagMedia)

	assert.Equal(t, "AUDIO", attrs.get("TYPE"))
	assert.Equal(t, "a,b", attrs.get("group-id"))
	assert.Equal(t, "Main", attrs.get("NAME"))
	assert.Equal(t, "YES", attrs.get("DEFAULT"))
	assert.Equal(t, "bare.m3u8", attrs.get("URI"))
	assert.Equal(t, "", attrs.get("LANGUAGE"))
}
