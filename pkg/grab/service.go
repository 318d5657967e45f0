// Package grab ties playlist parsing, segment fetching, assembly and
// progress reporting into complete download operations.
package grab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/assemble"
	"github.com/hollowness-inside/hlsgrab/pkg/fetch"
	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
	"github.com/hollowness-inside/hlsgrab/pkg/mux"
	"github.com/hollowness-inside/hlsgrab/pkg/progress"
)

// StrategyAuto lets the service choose the assembly strategy.
const StrategyAuto = "auto"

// Request describes one download. VideoURL may point at a master playlist,
// in which case its best variant and matching audio track are used.
type Request struct {
	VideoURL   string
	AudioURL   string
	Strategy   string
	ConcatMode assemble.ConcatMode
	// BaseName is the output name without extension. Empty derives it from
	// the playlist URL and quality.
	BaseName string
	// Limit keeps only the first Limit segments of each track when positive.
	Limit int
}

// Option customizes a Service built by New.
type Option func(*Service)

// WithEngine replaces the muxing engine. A nil engine disables muxing.
func WithEngine(engine mux.Engine) Option {
	return func(s *Service) {
		s.engine = engine
		s.engineSet = true
	}
}

// WithHTTPClient replaces the HTTP client built from Config.Headers.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// Service runs downloads. It holds no per-download state and may be shared.
type Service struct {
	cfg       Config
	client    *http.Client
	pipeline  *fetch.Pipeline
	ffmpeg    *mux.FFmpeg
	engine    mux.Engine
	engineSet bool
	assembler *assemble.Assembler
	log       zerolog.Logger
}

// New builds a Service from cfg. Unless WithEngine says otherwise, ffmpeg is
// used as the muxing engine when cfg allows it and it can be found.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		ffmpeg: &mux.FFmpeg{Path: cfg.FFmpegPath, Log: log.With().Str("component", "ffmpeg").Logger()},
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = fetch.NewClient(cfg.Headers)
	}
	if !s.engineSet {
		s.engine = s.defaultEngine()
	}

	s.pipeline = fetch.NewPipeline(s.client, fetch.Options{
		BatchSize: cfg.BatchSize,
		Delay:     cfg.Delay,
		Timeout:   cfg.Timeout,
	}, log.With().Str("component", "fetch").Logger())
	s.assembler = &assemble.Assembler{
		Engine:       s.engine,
		ReadyTimeout: cfg.ReadyTimeout,
		Log:          log.With().Str("component", "assemble").Logger(),
	}
	return s
}

func (s *Service) defaultEngine() mux.Engine {
	if s.cfg.NoMuxer {
		return nil
	}
	path, err := s.ffmpeg.Lookup()
	if err != nil {
		s.log.Info().Err(err).Msg("muxing disabled")
		return nil
	}
	s.log.Debug().Str("path", path).Msg("using ffmpeg")
	return s.ffmpeg
}

// MuxerAvailable reports whether two-track downloads can be muxed.
func (s *Service) MuxerAvailable() bool {
	return s.engine != nil
}

// FFmpeg returns the ffmpeg binding used for muxing and concatenation.
func (s *Service) FFmpeg() *mux.FFmpeg {
	return s.ffmpeg
}

// Inspect downloads and parses a playlist.
func (s *Service) Inspect(ctx context.Context, url string) (*m3u8.Document, error) {
	text, err := s.pipeline.FetchText(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := m3u8.Parse(url, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}

	ev := s.log.Debug().Str("url", url).Str("kind", string(doc.Kind)).Str("rule", string(doc.Rule))
	if doc.Master != nil {
		ev = ev.Int("variants", len(doc.Master.Variants)).Int("audio_tracks", len(doc.Master.AudioTracks))
	}
	if doc.Media != nil {
		ev = ev.Int("segments", len(doc.Media.Segments))
	}
	ev.Msg("playlist parsed")
	return doc, nil
}

// plan is a resolved Request: media playlists for each track.
type plan struct {
	video, audio *m3u8.Document
	quality      string
}

func (s *Service) resolve(ctx context.Context, req Request) (*plan, error) {
	if req.VideoURL == "" && req.AudioURL == "" {
		return nil, errors.New("no playlist URL given")
	}

	p := &plan{}
	audioURL := req.AudioURL

	if req.VideoURL != "" {
		doc, err := s.Inspect(ctx, req.VideoURL)
		if err != nil {
			return nil, err
		}

		if doc.Kind == m3u8.KindMaster {
			best := doc.Master.BestVariant()
			if best == nil {
				return nil, fmt.Errorf("%s: master playlist lists no variants", req.VideoURL)
			}
			p.quality = best.QualityLabel
			if audioURL == "" {
				if track := doc.Master.AudioFor(best); track != nil {
					audioURL = track.URI
					s.log.Info().Str("track", track.Label()).Msg("audio track selected")
				}
			}
			s.log.Info().Str("quality", best.QualityLabel).Uint64("bandwidth", best.Bandwidth).Msg("variant selected")

			if doc, err = s.Inspect(ctx, best.URL); err != nil {
				return nil, err
			}
			if doc.Kind == m3u8.KindMaster {
				return nil, fmt.Errorf("%s: variant is another master playlist", best.URL)
			}
		}

		if doc.Kind == m3u8.KindAudio && audioURL == "" {
			p.audio = doc
		} else {
			p.video = doc
		}
	}

	if audioURL != "" {
		doc, err := s.Inspect(ctx, audioURL)
		if err != nil {
			return nil, err
		}
		if doc.Kind == m3u8.KindMaster {
			return nil, fmt.Errorf("%s: audio playlist is a master playlist", audioURL)
		}
		p.audio = doc
	}

	return p, nil
}

func segmentURLs(doc *m3u8.Document, limit int) []string {
	if doc == nil {
		return nil
	}
	urls := doc.Media.URLs()
	if limit > 0 && limit < len(urls) {
		urls = urls[:limit]
	}
	return urls
}

// Download resolves, fetches and assembles req. Progress goes to sink; the
// last event is terminal.
func (s *Service) Download(ctx context.Context, req Request, sink progress.Sink) (*assemble.Result, error) {
	p, err := s.resolve(ctx, req)
	if err != nil {
		progress.NewReporter(sink).Fail(err)
		return nil, err
	}

	base := req.BaseName
	if base == "" {
		base = s.defaultBaseName(req, p)
	}

	videoURLs := segmentURLs(p.video, req.Limit)
	audioURLs := segmentURLs(p.audio, req.Limit)
	return s.run(ctx, videoURLs, audioURLs, req.Strategy, req.ConcatMode, base, sink)
}

func (s *Service) defaultBaseName(req Request, p *plan) string {
	src := req.VideoURL
	if src == "" {
		src = req.AudioURL
	}
	name := nameFromURL(src)
	if p.quality != "" && !strings.Contains(name, SanitizeName(p.quality)) {
		name += "_" + SanitizeName(p.quality)
	}
	return name
}

// DownloadSegments fetches a raw segment list and outputs it as a single
// track.
func (s *Service) DownloadSegments(ctx context.Context, urls []string, baseName string, sink progress.Sink) (*assemble.Result, error) {
	return s.run(ctx, urls, nil, string(assemble.Passthrough), assemble.ConcatAuto, baseName, sink)
}

func (s *Service) run(ctx context.Context, videoURLs, audioURLs []string, strategy string, mode assemble.ConcatMode, base string, sink progress.Sink) (*assemble.Result, error) {
	reporter := progress.NewReporter(sink, progress.Phases(len(videoURLs), len(audioURLs))...)
	log := s.log.With().Str("name", base).Logger()

	result, err := s.runReported(ctx, reporter, log, videoURLs, audioURLs, strategy, mode, base)
	if err != nil {
		log.Error().Err(err).Msg("download failed")
		reporter.Fail(err)
		return nil, err
	}

	log.Info().
		Str("file", result.SuggestedFilename).
		Str("strategy", string(result.Strategy)).
		Str("size", humanize.Bytes(uint64(len(result.Bytes)))).
		Msg("download assembled")
	reporter.Done(fmt.Sprintf("assembled %s (%s)", result.SuggestedFilename, humanize.Bytes(uint64(len(result.Bytes)))))
	return result, nil
}

func (s *Service) runReported(ctx context.Context, reporter *progress.Reporter, log zerolog.Logger, videoURLs, audioURLs []string, strategy string, mode assemble.ConcatMode, base string) (*assemble.Result, error) {
	if len(videoURLs) == 0 && len(audioURLs) == 0 {
		return nil, fetch.ErrNoSegments
	}

	video, err := s.fetchTrack(ctx, reporter, progress.PhaseFetchVideo, "video", videoURLs)
	if err != nil {
		return nil, err
	}
	audio, err := s.fetchTrack(ctx, reporter, progress.PhaseFetchAudio, "audio", audioURLs)
	if err != nil {
		return nil, err
	}

	chosen, err := s.strategy(strategy, video, audio)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("strategy", string(chosen)).Msg("assembling")
	reporter.Stage(progress.PhaseAssemble, string(chosen), 0, "assembling "+string(chosen))

	return s.assembler.Assemble(ctx, assemble.Request{
		Strategy:   chosen,
		ConcatMode: mode,
		Video:      video,
		Audio:      audio,
		BaseName:   base,
		OnEvent: func(ev mux.Event) {
			if ev.Type == mux.EventProgress {
				reporter.Stage(progress.PhaseAssemble, ev.Stage, stageFraction[ev.Stage], "muxing: "+ev.Stage)
			}
		},
	})
}

var stageFraction = map[string]float64{
	mux.StageWritingInput:  0.2,
	mux.StageRunningFFmpeg: 0.5,
	mux.StageReadingOutput: 0.9,
}

func (s *Service) strategy(name string, video, audio *assemble.Track) (assemble.Strategy, error) {
	if name == "" || name == StrategyAuto {
		return assemble.SelectStrategy(video, audio, s.MuxerAvailable())
	}
	return assemble.ParseStrategy(name)
}

// fetchTrack downloads one track. A track whose segments all failed is an
// error; an empty URL list yields a nil track.
func (s *Service) fetchTrack(ctx context.Context, reporter *progress.Reporter, phase, label string, urls []string) (*assemble.Track, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	units, err := s.pipeline.FetchAll(ctx, urls, func(done, total int) {
		reporter.Advance(phase, done, total, fmt.Sprintf("%s segments %d/%d", label, done, total))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	segments, err := fetch.Present(units)
	if err != nil {
		return nil, fmt.Errorf("%s: all %d segments failed: %w", label, len(units), err)
	}
	if failed := fetch.Failed(units); failed > 0 {
		s.log.Warn().Str("track", label).Int("failed", failed).Int("total", len(units)).Msg("continuing without missing segments")
	}
	return &assemble.Track{Segments: segments}, nil
}
