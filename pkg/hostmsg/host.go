package hostmsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/assemble"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
	"github.com/hollowness-inside/hlsgrab/pkg/progress"
)

// Incoming message types.
const (
	TypeCheckFFmpeg   = "check_ffmpeg"
	TypeMergeSegments = "merge_segments"
	TypeDownload      = "download"
)

// Outgoing message types.
const (
	TypeReady        = "ready"
	TypeFFmpegStatus = "ffmpeg_status"
	TypeStatus       = "status"
	TypeProgress     = "progress"
	TypeResult       = "result"
	TypeError        = "error"
)

// unknownQuality is what the extension sends when a variant has no label.
const unknownQuality = "unknown"

// Message is a request from the browser. ID is echoed on every reply the
// request produces.
type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MergeData is the payload of a merge_segments request.
type MergeData struct {
	Segments []string `json:"segments"`
	Filename string   `json:"filename"`
	Quality  string   `json:"quality"`
}

// DownloadData is the payload of a download request.
type DownloadData struct {
	VideoURL   string `json:"video_url"`
	AudioURL   string `json:"audio_url"`
	Filename   string `json:"filename"`
	Strategy   string `json:"strategy"`
	ConcatMode string `json:"concat_mode"`
}

// Reply is any message sent to the browser; unused fields are omitted.
type Reply struct {
	Type       string  `json:"type"`
	ID         string  `json:"id,omitempty"`
	Message    string  `json:"message,omitempty"`
	Available  *bool   `json:"available,omitempty"`
	Path       *string `json:"path,omitempty"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Data       *Result `json:"data,omitempty"`
}

// Result is the outcome of a merge_segments or download request.
type Result struct {
	Success            bool    `json:"success"`
	OutputFile         string  `json:"output_file,omitempty"`
	SegmentsDownloaded int     `json:"segments_downloaded,omitempty"`
	SegmentsFailed     int     `json:"segments_failed,omitempty"`
	TotalSegments      int     `json:"total_segments,omitempty"`
	FileSizeMB         float64 `json:"file_size_mb,omitempty"`
	Strategy           string  `json:"strategy,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// Host answers native messaging requests using a grab.Service. Jobs run
// concurrently; replies are written one frame at a time.
type Host struct {
	Service *grab.Service
	// OutputDir receives finished files. Empty means ~/Downloads.
	OutputDir string
	Log       zerolog.Logger
}

type replyWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (rw *replyWriter) send(r Reply) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return WriteMessage(rw.w, r)
}

type incoming struct {
	msg Message
	err error
}

// Serve announces readiness on w and handles messages from r until r is
// exhausted or ctx is cancelled. It waits for running jobs before
// returning. A clean end of input returns nil.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &replyWriter{w: w}
	var jobs sync.WaitGroup
	defer jobs.Wait()

	if err := out.send(Reply{Type: TypeReady, Message: "native host ready"}); err != nil {
		return fmt.Errorf("failed to announce host: %w", err)
	}

	// reads block without a deadline, so they happen off the select loop
	msgs := make(chan incoming)
	go func() {
		defer close(msgs)
		for {
			var msg Message
			err := ReadMessage(r, &msg)
			select {
			case msgs <- incoming{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !errors.Is(err, ErrInvalidMessage) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			switch {
			case errors.Is(in.err, io.EOF):
				h.Log.Debug().Msg("input closed")
				return nil
			case errors.Is(in.err, ErrInvalidMessage):
				h.Log.Warn().Err(in.err).Msg("dropping message")
				out.send(Reply{Type: TypeError, Message: in.err.Error()})
			case in.err != nil:
				out.send(Reply{Type: TypeError, Message: in.err.Error()})
				return in.err
			default:
				h.dispatch(ctx, in.msg, out, &jobs)
			}
		}
	}
}

func (h *Host) dispatch(ctx context.Context, msg Message, out *replyWriter, jobs *sync.WaitGroup) {
	log := h.Log.With().Str("type", msg.Type).Str("id", msg.ID).Logger()
	log.Debug().Msg("message received")

	switch msg.Type {
	case TypeCheckFFmpeg:
		out.send(h.ffmpegStatus(msg.ID))

	case TypeMergeSegments:
		var data MergeData
		if !h.decode(msg, &data, out) {
			return
		}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			out.send(Reply{Type: TypeResult, ID: msg.ID, Data: h.merge(ctx, msg.ID, data, out, log)})
		}()

	case TypeDownload:
		var data DownloadData
		if !h.decode(msg, &data, out) {
			return
		}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			out.send(Reply{Type: TypeResult, ID: msg.ID, Data: h.download(ctx, msg.ID, data, out, log)})
		}()

	default:
		log.Warn().Msg("unknown message type")
		out.send(Reply{Type: TypeError, ID: msg.ID, Message: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (h *Host) decode(msg Message, v any, out *replyWriter) bool {
	if len(msg.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		out.send(Reply{Type: TypeError, ID: msg.ID, Message: fmt.Sprintf("invalid %s data: %v", msg.Type, err)})
		return false
	}
	return true
}

func (h *Host) ffmpegStatus(id string) Reply {
	path, err := h.Service.FFmpeg().Lookup()
	available := err == nil
	if err != nil {
		h.Log.Info().Err(err).Msg("ffmpeg not found")
	}
	return Reply{Type: TypeFFmpegStatus, ID: id, Available: &available, Path: &path}
}

func (h *Host) progressSink(id string, out *replyWriter) progress.Sink {
	return func(ev progress.Event) {
		out.send(Reply{
			Type:       TypeProgress,
			ID:         id,
			Percentage: ev.Percentage,
			Status:     ev.Message,
			Stage:      ev.Stage,
		})
	}
}

func (h *Host) outputDir() string {
	if h.OutputDir != "" {
		return h.OutputDir
	}
	return DefaultOutputDir()
}

func (h *Host) merge(ctx context.Context, id string, data MergeData, out *replyWriter, log zerolog.Logger) *Result {
	if len(data.Segments) == 0 {
		return &Result{Error: "segment list is empty"}
	}
	name := data.Filename
	if name == "" {
		name = "video"
	}
	quality := data.Quality
	if strings.EqualFold(quality, unknownQuality) {
		quality = ""
	}

	out.send(Reply{Type: TypeStatus, ID: id, Message: fmt.Sprintf("downloading %d segments", len(data.Segments))})
	res, err := h.Service.MergeSegments(ctx, data.Segments, h.outputDir(), name, quality, h.progressSink(id, out))
	if err != nil {
		return &Result{Error: err.Error()}
	}

	log.Info().Str("file", res.OutputFile).Int("failed", res.Failed).Msg("segments merged")
	return &Result{
		Success:            true,
		OutputFile:         res.OutputFile,
		SegmentsDownloaded: res.Downloaded,
		SegmentsFailed:     res.Failed,
		TotalSegments:      res.Total,
		FileSizeMB:         megabytes(res.Size),
	}
}

func (h *Host) download(ctx context.Context, id string, data DownloadData, out *replyWriter, log zerolog.Logger) *Result {
	mode, err := assemble.ParseConcatMode(data.ConcatMode)
	if err != nil {
		return &Result{Error: err.Error()}
	}

	req := grab.Request{
		VideoURL:   data.VideoURL,
		AudioURL:   data.AudioURL,
		Strategy:   data.Strategy,
		ConcatMode: mode,
	}
	if data.Filename != "" {
		req.BaseName = grab.SanitizeName(data.Filename)
	}

	result, err := h.Service.Download(ctx, req, h.progressSink(id, out))
	if err != nil {
		return &Result{Error: err.Error()}
	}
	file, err := grab.Save(result, h.outputDir())
	if err != nil {
		return &Result{Error: err.Error()}
	}

	log.Info().Str("file", file).Str("strategy", string(result.Strategy)).Msg("download saved")
	return &Result{
		Success:    true,
		OutputFile: file,
		FileSizeMB: megabytes(int64(len(result.Bytes))),
		Strategy:   string(result.Strategy),
	}
}

func megabytes(n int64) float64 {
	return math.Round(float64(n)/(1<<20)*100) / 100
}

// DefaultOutputDir is the user's Downloads folder, or the working directory
// when the home directory is unknown.
func DefaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}
