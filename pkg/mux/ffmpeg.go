package mux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FFmpeg is an Engine backed by the ffmpeg binary. Each instance works in
// its own temporary directory, removed when the instance stops.
type FFmpeg struct {
	// Path to the binary; empty means "ffmpeg" on PATH.
	Path string
	Log  zerolog.Logger
}

func (f *FFmpeg) binary() string {
	if f.Path == "" {
		return FFmpegCommand
	}
	return f.Path
}

// Lookup resolves the ffmpeg binary to an absolute path.
func (f *FFmpeg) Lookup() (string, error) {
	path, err := exec.LookPath(f.binary())
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return path, nil
}

// Spawn starts a new instance. The instance stops after answering one merge
// request, on Terminate, or when ctx is done.
func (f *FFmpeg) Spawn(ctx context.Context) (Instance, error) {
	dir, err := os.MkdirTemp("", "hlsgrab-mux-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	inst := &ffmpegInstance{
		path:     f.binary(),
		dir:      dir,
		log:      f.Log.With().Str("dir", dir).Logger(),
		requests: make(chan Request, 2),
		events:   make(chan Event, 64),
		stopped:  make(chan struct{}),
		cancel:   cancel,
	}
	go inst.run(ctx)
	return inst, nil
}

type ffmpegInstance struct {
	path string
	dir  string
	log  zerolog.Logger

	requests chan Request
	events   chan Event
	stopped  chan struct{}

	cancel context.CancelFunc
}

func (i *ffmpegInstance) Post(req Request) error {
	select {
	case <-i.stopped:
		return ErrTerminated
	default:
	}

	select {
	case i.requests <- req:
		return nil
	case <-i.stopped:
		return ErrTerminated
	}
}

func (i *ffmpegInstance) Events() <-chan Event {
	return i.events
}

func (i *ffmpegInstance) Terminate() {
	i.cancel()
	<-i.stopped
}

func (i *ffmpegInstance) run(ctx context.Context) {
	defer func() {
		if err := os.RemoveAll(i.dir); err != nil {
			i.log.Warn().Err(err).Msg("failed to remove work directory")
		}
		close(i.events)
		close(i.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-i.requests:
			switch req.Type {
			case RequestInit:
				if err := exec.CommandContext(ctx, i.path, "-version").Run(); err != nil {
					i.emit(ctx, Event{Type: EventFatal, Error: fmt.Sprintf("ffmpeg is not runnable: %v", err)})
					return
				}
				i.emit(ctx, Event{Type: EventReady})
			case RequestMerge:
				i.merge(ctx, req)
				return
			default:
				i.emit(ctx, Event{Type: EventError, Data: fmt.Sprintf("unknown request %q", req.Type)})
			}
		}
	}
}

func (i *ffmpegInstance) emit(ctx context.Context, ev Event) {
	select {
	case i.events <- ev:
	case <-ctx.Done():
	}
}

func (i *ffmpegInstance) merge(ctx context.Context, req Request) {
	videoPath := filepath.Join(i.dir, "video")
	audioPath := filepath.Join(i.dir, "audio")
	outputPath := filepath.Join(i.dir, "merged.mp4")

	i.emit(ctx, Event{Type: EventProgress, Stage: StageWritingInput})
	if err := os.WriteFile(videoPath, req.Video, 0o600); err != nil {
		i.emit(ctx, Event{Type: EventFatal, Error: fmt.Sprintf("failed to write video input: %v", err)})
		return
	}
	if err := os.WriteFile(audioPath, req.Audio, 0o600); err != nil {
		i.emit(ctx, Event{Type: EventFatal, Error: fmt.Sprintf("failed to write audio input: %v", err)})
		return
	}

	i.emit(ctx, Event{Type: EventProgress, Stage: StageRunningFFmpeg})
	args := BuildMergeArgs(req.Mode, videoPath, audioPath, outputPath)
	if err := run(ctx, i.path, args, func(line string) {
		i.emit(ctx, Event{Type: EventLog, Data: line})
	}); err != nil {
		i.emit(ctx, Event{Type: EventError, Data: fmt.Sprintf("[%s-fail] %v", req.Mode, err)})
		i.emit(ctx, Event{Type: EventFatal, Error: err.Error()})
		return
	}

	i.emit(ctx, Event{Type: EventProgress, Stage: StageReadingOutput})
	out, err := os.ReadFile(outputPath)
	if err != nil {
		i.emit(ctx, Event{Type: EventFatal, Error: fmt.Sprintf("failed to read output: %v", err)})
		return
	}
	i.emit(ctx, Event{Type: EventDone, Buffer: out})
}

// Concat joins files with the concat demuxer into outputPath. Stderr lines
// go to onLine when it is non-nil.
func (f *FFmpeg) Concat(ctx context.Context, files []string, outputPath string, onLine func(string)) error {
	if len(files) == 0 {
		return fmt.Errorf("nothing to concatenate")
	}

	list, err := os.CreateTemp("", "hlsgrab-filelist-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create file list: %w", err)
	}
	defer os.Remove(list.Name())

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			list.Close()
			return err
		}
		// single quotes inside a quoted path are written as '\''
		fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("failed to write file list: %w", err)
	}

	f.Log.Debug().Int("files", len(files)).Str("output", outputPath).Msg("concatenating")
	return run(ctx, f.binary(), BuildConcatArgs(list.Name(), outputPath), onLine)
}

// run executes ffmpeg, feeding stderr lines to onLine. The returned error
// carries the last stderr line when the process fails.
func run(ctx context.Context, path string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, path, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	last := scanLines(stderr, onLine)

	if err := cmd.Wait(); err != nil {
		if last != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, last)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

func scanLines(r io.Reader, onLine func(string)) string {
	var last string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if onLine != nil {
			onLine(line)
		}
	}
	// keep the pipe drained if a line overflowed the scanner
	io.Copy(io.Discard, r)
	return last
}
