package grab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/hollowness-inside/hlsgrab/pkg/fetch"
	"github.com/hollowness-inside/hlsgrab/pkg/progress"
)

// MergeResult describes a segment list merged to disk with ffmpeg.
type MergeResult struct {
	OutputFile string
	Downloaded int
	Failed     int
	Total      int
	Size       int64
}

// MergeSegments downloads urls into a scratch directory, joins them with
// the ffmpeg concat demuxer and writes name_merged.mp4 (name_quality_merged.mp4
// when quality is set) into dir. Missing segments are skipped.
func (s *Service) MergeSegments(ctx context.Context, urls []string, dir, name, quality string, sink progress.Sink) (*MergeResult, error) {
	reporter := progress.NewReporter(sink, progress.Phases(len(urls), 0)...)

	res, err := s.mergeSegments(ctx, reporter, urls, dir, name, quality)
	if err != nil {
		s.log.Error().Err(err).Msg("merge failed")
		reporter.Fail(err)
		return nil, err
	}
	reporter.Done(fmt.Sprintf("merged %d/%d segments into %s (%s)",
		res.Downloaded, res.Total, filepath.Base(res.OutputFile), humanize.Bytes(uint64(res.Size))))
	return res, nil
}

func (s *Service) mergeSegments(ctx context.Context, reporter *progress.Reporter, urls []string, dir, name, quality string) (*MergeResult, error) {
	if len(urls) == 0 {
		return nil, fetch.ErrNoSegments
	}
	if _, err := s.ffmpeg.Lookup(); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "hlsgrab-segments-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create segments directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	units, err := s.pipeline.FetchAll(ctx, urls, func(done, total int) {
		reporter.Advance(progress.PhaseFetchVideo, done, total, fmt.Sprintf("segments %d/%d", done, total))
	})
	if err != nil {
		return nil, err
	}

	var files []string
	for _, u := range units {
		if !u.OK() {
			continue
		}
		path := filepath.Join(scratch, fmt.Sprintf("segment_%04d.ts", u.Index))
		if err := os.WriteFile(path, u.Data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write segment %d: %w", u.Index, err)
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("all %d segments failed: %w", len(units), fetch.ErrNoSegments)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stem := SanitizeName(name)
	if quality != "" {
		stem += "_" + SanitizeName(quality)
	}
	output, err := uniquePath(dir, stem+"_merged.mp4")
	if err != nil {
		return nil, err
	}

	reporter.Stage(progress.PhaseAssemble, "concat", 0.1, fmt.Sprintf("joining %d segments", len(files)))
	// ffmpeg writes to a scratch file so the final name only appears when complete
	tmpOut := filepath.Join(scratch, "merged.mp4")
	if err := s.ffmpeg.Concat(ctx, files, tmpOut, func(line string) {
		s.log.Debug().Str("stderr", line).Msg("ffmpeg")
	}); err != nil {
		return nil, err
	}
	if err := moveFile(tmpOut, output); err != nil {
		return nil, err
	}

	info, err := os.Stat(output)
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		OutputFile: output,
		Downloaded: len(files),
		Failed:     len(units) - len(files),
		Total:      len(units),
		Size:       info.Size(),
	}, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read merged output: %w", err)
	}
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write merged output: %w", err)
	}
	return os.Rename(tmp, dst)
}
