package m3u8

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want MediaKind
	}{
		{"https://cdn.example.com/live/master.m3u8", MediaKindPlaylist},
		{"https://cdn.example.com/live/MASTER.M3U8?token=abc&exp=1", MediaKindPlaylist},
		{"https://cdn.example.com/live/index.m3u8#t=10", MediaKindPlaylist},
		{"https://cdn.example.com/movie.mp4", MediaKindDirectVideo},
		{"https://cdn.example.com/movie.WEBM?range=0-", MediaKindDirectVideo},
		{"https://cdn.example.com/clips/a.mov", MediaKindDirectVideo},
		{"https://cdn.example.com/clips/a.mkv", MediaKindDirectVideo},
		{"https://cdn.example.com/clips/a.avi", MediaKindDirectVideo},
		{"https://cdn.example.com/preload/blank.mp4", MediaKindIgnored},
		{"https://cdn.example.com/ads/Dummy_Video.mp4", MediaKindIgnored},
		{"https://cdn.example.com/sample-clip.webm", MediaKindIgnored},
		// the denylist applies to the file name only
		{"https://test.example.com/videos/movie.mp4", MediaKindDirectVideo},
		{"https://cdn.example.com/segment0.ts", MediaKindIgnored},
		{"https://cdn.example.com/page.html?file=video.mp4", MediaKindIgnored},
		{"https://cdn.example.com/m3u8/player.js", MediaKindIgnored},
		{"", MediaKindIgnored},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.url), tt.url)
	}
}

func TestClassifierCustomDenylist(t *testing.T) {
	c := Classifier{Denylist: []string{"Preroll"}}

	assert.Equal(t, MediaKindIgnored, c.Classify("https://cdn.example.com/ads/preroll_01.mp4"))
	assert.Equal(t, MediaKindDirectVideo, c.Classify("https://cdn.example.com/clips/sample.mp4"))

	empty := Classifier{Denylist: []string{}}
	assert.Equal(t, MediaKindDirectVideo, empty.Classify("https://cdn.example.com/clips/blank.mp4"))
}

func TestResolve(t *testing.T) {
	base := "https://cdn.example.com/stream/master.m3u8?token=1"

	tests := []struct {
		ref  string
		want string
	}{
		{"seg0.ts", "https://cdn.example.com/stream/seg0.ts"},
		{"hd/index.m3u8", "https://cdn.example.com/stream/hd/index.m3u8"},
		{"http://other.example.com/a.ts", "http://other.example.com/a.ts"},
		{"https://other.example.com/a.ts", "https://other.example.com/a.ts"},
		// no RFC 3986 interpretation
		{"../up.ts", "https://cdn.example.com/stream/../up.ts"},
		{"/root.ts", "https://cdn.example.com/stream//root.ts"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(base, tt.ref), tt.ref)
	}

	assert.Equal(t, "seg.ts", Resolve("no-slash", "seg.ts"))
}

func TestResolveIdempotentForAbsolute(t *testing.T) {
	bases := []string{
		"https://cdn.example.com/stream/master.m3u8",
		"http://a/b/c/d",
		"relative/base",
	}
	refs := []string{
		"seg0.ts",
		"https://x.example.com/y.ts",
		"http://x.example.com/deep/path/z.ts?q=1",
	}

	for _, base := range bases {
		for _, ref := range refs {
			once := Resolve(base, ref)
			if !isAbsolute(once) {
				continue
			}
			require.Equal(t, once, Resolve(base, once), "base=%s ref=%s", base, ref)
		}
	}
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		res  *Resolution
		url  string
		want string
	}{
		{&Resolution{3840, 2160}, "a.m3u8", "4K"},
		{&Resolution{2560, 1440}, "a.m3u8", "1080p"},
		{&Resolution{1920, 1080}, "a.m3u8", "1080p"},
		{&Resolution{1280, 720}, "a.m3u8", "720p"},
		{&Resolution{854, 480}, "a.m3u8", "480p"},
		{&Resolution{640, 360}, "a.m3u8", "360p"},
		{&Resolution{426, 240}, "a.m3u8", "240p"},
		{nil, "https://cdn.example.com/hls/stream_720P.m3u8", "720p"},
		{nil, "https://cdn.example.com/1080p/index.m3u8", "index.m3u8"},
		{nil, "https://cdn.example.com/hls/movie-4k.m3u8", "4K"},
		{nil, "https://cdn.example.com/hls/chunklist.m3u8", "chunklist.m3u8"},
		{&Resolution{}, "https://cdn.example.com/hls/v_480p.m3u8", "480p"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityLabel(tt.res, tt.url), "%v %s", tt.res, tt.url)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "seg0.ts", BaseName("https://cdn.example.com/hls/seg0.ts"))
	assert.Equal(t, "seg0.ts", BaseName("https://cdn.example.com/hls/seg0.ts?sig=a/b"))
	assert.Equal(t, "index.m3u8", BaseName("https://cdn.example.com/hls/index.m3u8#t=10"))
	assert.Equal(t, "", BaseName("https://cdn.example.com/hls/"))
	assert.Equal(t, "chunk.aac", BaseName("chunk.aac"))
}
