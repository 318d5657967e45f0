package m3u8

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedFormat is returned when playlist text matches none of the
// classification rules.
var ErrUnrecognizedFormat = errors.New("unrecognized playlist format")

// Kind tells what a playlist document describes.
type Kind string

const (
	KindMaster  Kind = "master"
	KindVariant Kind = "variant"
	KindAudio   Kind = "audio"
)

// Rule names the classification signal that decided a playlist's Kind.
type Rule string

const (
	RuleStreamInf       Rule = "stream-inf tag"
	RuleAudioSegment    Rule = "audio segment extension"
	RuleAudioURLHint    Rule = "audio hint in url"
	RuleTransportStream Rule = "ts segment"
)

// Classification is the outcome of ClassifyPlaylist.
type Classification struct {
	Kind Kind `json:"kind"`
	Rule Rule `json:"rule"`
}

// Document is a parsed playlist. Master is set for KindMaster, Media for
// KindVariant and KindAudio; the media shape is the same for both.
type Document struct {
	Kind   Kind            `json:"kind"`
	Rule   Rule            `json:"rule"`
	URL    string          `json:"url"`
	Master *MasterPlaylist `json:"master,omitempty"`
	Media  *MediaPlaylist  `json:"media,omitempty"`
}

type MasterPlaylist struct {
	Variants    []VariantRef    `json:"variants"`
	AudioTracks []AudioTrackRef `json:"audio_tracks"`
}

type MediaPlaylist struct {
	Segments      []Segment `json:"segments"`
	TotalDuration float64   `json:"total_duration"`
}

// Resolution is a RESOLUTION attribute in pixels.
type Resolution struct {
	Width  uint `json:"width"`
	Height uint `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// VariantRef points at one quality variant of a master playlist. Empty
// strings mean the attribute was absent.
type VariantRef struct {
	URL          string      `json:"url"`
	Bandwidth    uint64      `json:"bandwidth"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	FrameRate    *float64    `json:"frame_rate,omitempty"`
	Codecs       string      `json:"codecs,omitempty"`
	AudioGroupID string      `json:"audio_group_id,omitempty"`
	QualityLabel string      `json:"quality_label"`
}

// AudioTrackRef is an EXT-X-MEDIA audio rendition with a playable URI.
type AudioTrackRef struct {
	GroupID  string `json:"group_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	URI      string `json:"uri"`
	Default  bool   `json:"default"`
}

// Label is a short human readable description of the track.
func (a AudioTrackRef) Label() string {
	label := a.Name
	if label == "" {
		label = a.Language
	}
	if label == "" {
		label = "Audio"
	}
	if a.Language != "" && a.Language != label {
		label += " / " + a.Language
	}
	if a.Default {
		label += " / default"
	}
	return label
}

type Segment struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// URLs lists the segment URLs in playback order.
func (m *MediaPlaylist) URLs() []string {
	urls := make([]string, len(m.Segments))
	for i, seg := range m.Segments {
		urls[i] = seg.URL
	}
	return urls
}

// BestVariant returns the highest bandwidth variant, or nil.
func (m *MasterPlaylist) BestVariant() *VariantRef {
	if len(m.Variants) == 0 {
		return nil
	}
	return &m.Variants[0]
}

// AudioFor picks the audio track to pair with v: the default track of its
// audio group, then the group's first track, then the first track overall.
func (m *MasterPlaylist) AudioFor(v *VariantRef) *AudioTrackRef {
	if len(m.AudioTracks) == 0 {
		return nil
	}

	if v != nil && v.AudioGroupID != "" {
		var first *AudioTrackRef
		for i := range m.AudioTracks {
			track := &m.AudioTracks[i]
			if track.GroupID != v.AudioGroupID {
				continue
			}
			if track.Default {
				return track
			}
			if first == nil {
				first = track
			}
		}
		if first != nil {
			return first
		}
	}

	return &m.AudioTracks[0]
}
