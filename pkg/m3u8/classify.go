package m3u8

import (
	"strings"
)

// MediaKind is the verdict of classifying a bare URL.
type MediaKind string

const (
	MediaKindPlaylist    MediaKind = "playlist"
	MediaKindDirectVideo MediaKind = "directVideo"
	MediaKindIgnored     MediaKind = "ignored"
)

// DefaultDenylist holds file name fragments of decoy videos that sites load
// for preloading or analytics.
var DefaultDenylist = []string{"blank", "dummy", "placeholder", "empty", "fake", "test", "sample"}

var directVideoExts = []string{".mp4", ".webm", ".avi", ".mov", ".mkv"}

// Classifier decides whether a URL names a playlist, a direct video file or
// nothing of interest.
type Classifier struct {
	// Denylist is matched case-insensitively against the final path segment
	// of direct video URLs. Nil means DefaultDenylist.
	Denylist []string
}

// Classify uses a Classifier with the default denylist.
func Classify(rawURL string) MediaKind {
	return Classifier{}.Classify(rawURL)
}

// Classify returns the MediaKind of rawURL. The query string and fragment
// are ignored.
func (c Classifier) Classify(rawURL string) MediaKind {
	path := strings.ToLower(urlPath(rawURL))

	if strings.HasSuffix(path, ".m3u8") {
		return MediaKindPlaylist
	}

	for _, ext := range directVideoExts {
		if !strings.HasSuffix(path, ext) {
			continue
		}
		if c.isDecoy(BaseName(path)) {
			return MediaKindIgnored
		}
		return MediaKindDirectVideo
	}

	return MediaKindIgnored
}

func (c Classifier) isDecoy(name string) bool {
	denylist := c.Denylist
	if denylist == nil {
		denylist = DefaultDenylist
	}
	for _, fragment := range denylist {
		if fragment != "" && strings.Contains(name, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// urlPath strips the query string and fragment.
func urlPath(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// BaseName returns the final path segment of rawURL with any query string
// or fragment removed. A URL ending in "/" has an empty base name.
func BaseName(rawURL string) string {
	path := urlPath(rawURL)
	return path[strings.LastIndex(path, "/")+1:]
}
