package capture

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
)

// SniffLimit is how much of a response body is searched for a playlist
// header.
const SniffLimit = 3 << 20

var (
	playlistHeader  = []byte("#EXTM3U")
	playlistContent = regexp.MustCompile(`(?i)m3u8|mpegurl|application/octet-stream`)
	playlistURL     = regexp.MustCompile(`(?i)m3u8`)
	variantName     = regexp.MustCompile(`\d{3,4}p`)
)

// Capturer turns observed network traffic into registry entries.
type Capturer struct {
	Registry   *Registry
	Classifier m3u8.Classifier
	// Now stamps entries; nil means time.Now.
	Now func() time.Time
	Log zerolog.Logger
}

// NewCapturer returns a Capturer using the default classifier.
func NewCapturer(registry *Registry, log zerolog.Logger) *Capturer {
	return &Capturer{Registry: registry, Log: log}
}

// Observe classifies an outgoing request URL and records it when it names a
// playlist or a direct video. The returned entry is only meaningful when
// recorded is true.
func (c *Capturer) Observe(sessionID, rawURL string) (entry Entry, recorded bool, err error) {
	kind := c.Classifier.Classify(rawURL)
	switch kind {
	case m3u8.MediaKindPlaylist:
		entry = c.entry(rawURL, GuessKind(rawURL), kind)
	case m3u8.MediaKindDirectVideo:
		entry = c.entry(rawURL, EntryUnknown, kind)
		entry.Ext = strings.TrimPrefix(path.Ext(strings.ToLower(m3u8.BaseName(rawURL))), ".")
	default:
		return Entry{}, false, nil
	}
	return c.record(sessionID, entry)
}

// ObserveResponse inspects a response whose URL may hide the playlist
// extension. When the content type or URL looks like a playlist, up to
// SniffLimit bytes of body are searched for the #EXTM3U header. Misses are
// silent: a playlist that escapes this check is simply not captured.
func (c *Capturer) ObserveResponse(sessionID, rawURL, contentType string, body io.Reader) (Entry, bool, error) {
	if !playlistContent.MatchString(contentType) && !playlistURL.MatchString(rawURL) {
		return Entry{}, false, nil
	}

	head, err := io.ReadAll(io.LimitReader(body, SniffLimit))
	if err != nil {
		c.Log.Debug().Err(err).Str("url", rawURL).Msg("response sniff aborted")
		return Entry{}, false, nil
	}
	if !bytes.Contains(head, playlistHeader) {
		return Entry{}, false, nil
	}

	return c.record(sessionID, c.entry(rawURL, GuessKind(rawURL), m3u8.MediaKindPlaylist))
}

func (c *Capturer) entry(rawURL string, kind EntryKind, media m3u8.MediaKind) Entry {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Entry{URL: rawURL, CapturedAt: now(), Kind: kind, Media: media}
}

func (c *Capturer) record(sessionID string, entry Entry) (Entry, bool, error) {
	added, err := c.Registry.Record(sessionID, entry)
	if err != nil {
		return Entry{}, false, fmt.Errorf("record %s: %w", entry.URL, err)
	}
	if added {
		c.Log.Info().
			Str("session", sessionID).
			Str("url", entry.URL).
			Str("kind", string(entry.Kind)).
			Str("media", string(entry.Media)).
			Msg("media captured")
	}
	return entry, added, nil
}

// GuessKind guesses a playlist's role from its file name: names with
// "variant" or a resolution like 720p are variants, names with audio, sound
// or snd are audio, anything else is taken for a master.
func GuessKind(rawURL string) EntryKind {
	name := strings.ToLower(m3u8.BaseName(rawURL))
	switch {
	case name == "":
		return EntryUnknown
	case strings.Contains(name, "variant") || variantName.MatchString(name):
		return EntryVariant
	case strings.Contains(name, "audio") || strings.Contains(name, "sound") || strings.Contains(name, "snd"):
		return EntryAudio
	default:
		return EntryMaster
	}
}

