// Package assemble combines downloaded video and audio segments into one
// output artifact.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/fetch"
	"github.com/hollowness-inside/hlsgrab/pkg/mux"
)

// Strategy selects how downloaded tracks become one output file.
type Strategy string

const (
	// Passthrough outputs the only available track unchanged.
	Passthrough Strategy = "passthrough"
	// NaiveConcat joins video and audio bytes without a muxer. The output is
	// an approximation that many players only play partly.
	NaiveConcat Strategy = "concat"
	// Mux hands both tracks to the muxing engine.
	Mux Strategy = "mux"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(s)); st {
	case Passthrough, NaiveConcat, Mux:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ConcatMode is the byte layout used by NaiveConcat.
type ConcatMode string

const (
	// ConcatAuto interleaves when both tracks have several segments.
	ConcatAuto ConcatMode = "auto"
	// ConcatSequential writes all video bytes, then all audio bytes.
	ConcatSequential ConcatMode = "sequential"
	// ConcatInterleaved alternates video[i] and audio[i].
	ConcatInterleaved ConcatMode = "interleaved"
)

// ParseConcatMode parses a concat mode name. The empty string means ConcatAuto.
func ParseConcatMode(s string) (ConcatMode, error) {
	switch m := ConcatMode(strings.ToLower(s)); m {
	case "":
		return ConcatAuto, nil
	case ConcatAuto, ConcatSequential, ConcatInterleaved:
		return m, nil
	}
	return "", fmt.Errorf("unknown concat mode %q", s)
}

// Track holds the downloaded segment payloads of one stream, in order.
type Track struct {
	Segments [][]byte
}

// Empty reports whether t carries no bytes.
func (t *Track) Empty() bool {
	if t == nil {
		return true
	}
	for _, s := range t.Segments {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// Size is the total payload length.
func (t *Track) Size() int {
	if t == nil {
		return 0
	}
	size := 0
	for _, s := range t.Segments {
		size += len(s)
	}
	return size
}

// Bytes concatenates the segments.
func (t *Track) Bytes() []byte {
	if t == nil {
		return nil
	}
	out := make([]byte, 0, t.Size())
	for _, s := range t.Segments {
		out = append(out, s...)
	}
	return out
}

// SelectStrategy picks Passthrough for a single track, Mux for two tracks
// when a muxer is reachable and NaiveConcat otherwise.
func SelectStrategy(video, audio *Track, muxer bool) (Strategy, error) {
	switch {
	case video.Empty() && audio.Empty():
		return "", fetch.ErrNoSegments
	case video.Empty() || audio.Empty():
		return Passthrough, nil
	case muxer:
		return Mux, nil
	default:
		return NaiveConcat, nil
	}
}

// Request describes one assembly. Audio is nil for single track playlists.
type Request struct {
	Strategy   Strategy
	ConcatMode ConcatMode
	Video      *Track
	Audio      *Track
	// BaseName is the output file name without extension.
	BaseName string
	// OnEvent observes muxing engine events.
	OnEvent func(mux.Event)
}

// Result is a complete output artifact.
type Result struct {
	Bytes             []byte
	SuggestedFilename string
	MimeType          string
	Strategy          Strategy
}

// Assembler runs assembly strategies. A nil Engine means no muxer is
// reachable.
type Assembler struct {
	Engine       mux.Engine
	ReadyTimeout time.Duration
	Log          zerolog.Logger
}

// Ladder is the order in which mux modes are attempted.
var Ladder = []mux.Mode{mux.ModeCopy, mux.ModeTranscode}

func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	base := req.BaseName
	if base == "" {
		base = "video"
	}
	log := a.Log.With().Str("strategy", string(req.Strategy)).Logger()

	switch req.Strategy {
	case Passthrough:
		return passthrough(req, base)
	case NaiveConcat:
		if req.Video.Empty() || req.Audio.Empty() {
			return nil, fmt.Errorf("%s needs both video and audio: %w", req.Strategy, fetch.ErrNoSegments)
		}
		data := concat(req.Video, req.Audio, req.ConcatMode)
		log.Info().Int("bytes", len(data)).Msg("tracks concatenated without muxer")
		return &Result{Bytes: data, SuggestedFilename: base + ".mp4", MimeType: "video/mp4", Strategy: NaiveConcat}, nil
	case Mux:
		if req.Video.Empty() || req.Audio.Empty() {
			return nil, fmt.Errorf("%s needs both video and audio: %w", req.Strategy, fetch.ErrNoSegments)
		}
		data, err := a.runLadder(ctx, req, log)
		if err != nil {
			return nil, err
		}
		return &Result{Bytes: data, SuggestedFilename: base + ".mp4", MimeType: "video/mp4", Strategy: Mux}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
}

func passthrough(req Request, base string) (*Result, error) {
	track, audio := req.Video, false
	switch {
	case !req.Video.Empty() && !req.Audio.Empty():
		return nil, errors.New("passthrough needs exactly one track")
	case req.Video.Empty():
		track, audio = req.Audio, true
	}
	if track.Empty() {
		return nil, fetch.ErrNoSegments
	}

	data := track.Bytes()
	ext, mime := fileType(Sniff(data), audio)
	return &Result{Bytes: data, SuggestedFilename: base + ext, MimeType: mime, Strategy: Passthrough}, nil
}

func concat(video, audio *Track, mode ConcatMode) []byte {
	if mode == "" || mode == ConcatAuto {
		mode = ConcatSequential
		if len(video.Segments) > 1 && len(audio.Segments) > 1 {
			mode = ConcatInterleaved
		}
	}
	if mode == ConcatSequential {
		return append(video.Bytes(), audio.Bytes()...)
	}

	out := make([]byte, 0, video.Size()+audio.Size())
	n := max(len(video.Segments), len(audio.Segments))
	for i := 0; i < n; i++ {
		if i < len(video.Segments) {
			out = append(out, video.Segments[i]...)
		}
		if i < len(audio.Segments) {
			out = append(out, audio.Segments[i]...)
		}
	}
	return out
}

// runLadder walks Ladder, each attempt on a fresh engine instance.
func (a *Assembler) runLadder(ctx context.Context, req Request, log zerolog.Logger) ([]byte, error) {
	if a.Engine == nil {
		return nil, &EngineUnavailableError{Err: errors.New("no muxing engine configured")}
	}

	video, audio := req.Video.Bytes(), req.Audio.Bytes()
	opts := mux.Options{ReadyTimeout: a.ReadyTimeout, OnEvent: req.OnEvent, Log: log}

	var attempts []mux.Mode
	var last error
	for _, mode := range Ladder {
		attempts = append(attempts, mode)
		out, err := mux.MergeOnce(ctx, a.Engine, video, audio, mode, opts)
		if err == nil {
			log.Info().Str("mode", string(mode)).Int("bytes", len(out)).Msg("tracks muxed")
			return out, nil
		}
		if errors.Is(err, mux.ErrEngineUnavailable) {
			log.Error().Err(err).Msg("muxing engine unavailable")
			return nil, &EngineUnavailableError{Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Str("mode", string(mode)).Msg("mux attempt failed")
		last = err
	}
	return nil, &MuxError{Attempts: attempts, Err: last}
}
