package hostmsg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowness-inside/hlsgrab/pkg/grab"
)

func frames(t *testing.T, msgs ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		require.NoError(t, WriteMessage(&buf, m))
	}
	return &buf
}

func readReplies(t *testing.T, r io.Reader) []Reply {
	t.Helper()
	var replies []Reply
	for {
		var reply Reply
		err := ReadMessage(r, &reply)
		if errors.Is(err, io.EOF) {
			return replies
		}
		require.NoError(t, err)
		replies = append(replies, reply)
	}
}

func byType(replies []Reply, typ string) []Reply {
	var out []Reply
	for _, r := range replies {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func segmentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		switch {
		case name == "index.m3u8":
			w.Write([]byte("#EXTM3U\n#EXTINF:4,\ns0.ts\n#EXTINF:4,\ns1.ts\n#EXT-X-ENDLIST\n"))
		case name == "missing.ts":
			http.NotFound(w, r)
		case strings.HasSuffix(name, ".ts"):
			fmt.Fprintf(w, "<%s>", strings.TrimSuffix(name, ".ts"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version test"; exit 0; fi
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then list="$a"; fi
  prev="$a"
  out="$a"
done
sed -n "s/^file '\(.*\)'$/\1/p" "$list" | while read -r f; do cat "$f"; done > "$out"
`
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func newHost(t *testing.T, ffmpegPath string) *Host {
	t.Helper()
	cfg := grab.DefaultConfig()
	cfg.Delay = -1
	cfg.FFmpegPath = ffmpegPath
	cfg.NoMuxer = true
	return &Host{
		Service:   grab.New(cfg, zerolog.Nop()),
		OutputDir: t.TempDir(),
		Log:       zerolog.Nop(),
	}
}

func serve(t *testing.T, h *Host, in io.Reader) []Reply {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, h.Serve(context.Background(), in, &out))
	return readReplies(t, &out)
}

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, map[string]string{"type": "ping"}))

	raw := buf.Bytes()
	assert.Equal(t, uint32(len(raw)-4), binary.LittleEndian.Uint32(raw[:4]))
	assert.JSONEq(t, `{"type":"ping"}`, string(raw[4:]))

	var msg Message
	require.NoError(t, ReadMessage(&buf, &msg))
	assert.Equal(t, "ping", msg.Type)
	assert.ErrorIs(t, ReadMessage(&buf, &msg), io.EOF)
}

func TestFramingErrors(t *testing.T) {
	var msg Message

	err := ReadMessage(bytes.NewReader([]byte{1, 0}), &msg)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = ReadMessage(bytes.NewReader([]byte{10, 0, 0, 0, '{'}), &msg)
	assert.ErrorContains(t, err, "truncated")

	err = ReadMessage(bytes.NewReader([]byte{10, 0, 0, 0}), &msg)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, io.EOF)

	err = ReadMessage(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), &msg)
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	err = ReadMessage(bytes.NewReader([]byte{3, 0, 0, 0, 'n', 'o', '!'}), &msg)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	err = WriteMessage(io.Discard, strings.Repeat("x", MaxOutgoing))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestServeReadyAndCheckFFmpeg(t *testing.T) {
	bin := fakeFFmpeg(t)

	replies := serve(t, newHost(t, bin), frames(t, Message{Type: TypeCheckFFmpeg, ID: "1"}))
	require.Len(t, replies, 2)
	assert.Equal(t, TypeReady, replies[0].Type)

	status := replies[1]
	assert.Equal(t, TypeFFmpegStatus, status.Type)
	assert.Equal(t, "1", status.ID)
	require.NotNil(t, status.Available)
	assert.True(t, *status.Available)
	assert.Equal(t, bin, *status.Path)

	replies = serve(t, newHost(t, filepath.Join(t.TempDir(), "nope")), frames(t, Message{Type: TypeCheckFFmpeg}))
	require.Len(t, replies, 2)
	assert.False(t, *replies[1].Available)
}

func TestServeUnknownAndInvalidMessages(t *testing.T) {
	in := frames(t, Message{Type: "explode", ID: "7"})
	in.Write([]byte{2, 0, 0, 0, '{', '['})
	require.NoError(t, WriteMessage(in, Message{Type: TypeDownload, Data: []byte(`{"video_url": 5}`)}))
	require.NoError(t, WriteMessage(in, Message{Type: TypeCheckFFmpeg}))

	replies := serve(t, newHost(t, ""), in)
	errs := byType(replies, TypeError)
	require.Len(t, errs, 3)
	assert.Equal(t, "7", errs[0].ID)
	assert.Contains(t, errs[0].Message, "explode")
	assert.Contains(t, errs[1].Message, "invalid message")
	assert.Contains(t, errs[2].Message, "invalid download data")

	// the stream survives bad messages
	assert.Len(t, byType(replies, TypeFFmpegStatus), 1)
}

func TestServeTruncatedInput(t *testing.T) {
	tests := map[string][]byte{
		"partial body": {9, 0, 0, 0, '{'},
		"header only":  {9, 0, 0, 0},
	}
	for name, tail := range tests {
		t.Run(name, func(t *testing.T) {
			in := frames(t, Message{Type: TypeCheckFFmpeg})
			in.Write(tail)

			var out bytes.Buffer
			err := newHost(t, "").Serve(context.Background(), in, &out)
			require.ErrorIs(t, err, io.ErrUnexpectedEOF)

			replies := readReplies(t, &out)
			assert.Equal(t, TypeError, replies[len(replies)-1].Type)
		})
	}
}

func TestServeCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newHost(t, "").Serve(ctx, pr, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeDownload(t *testing.T) {
	srv := segmentServer(t)
	h := newHost(t, "")

	replies := serve(t, h, frames(t, Message{
		Type: TypeDownload,
		ID:   "dl",
		Data: []byte(fmt.Sprintf(`{"video_url":%q,"filename":"My Clip"}`, srv.URL+"/index.m3u8")),
	}))

	results := byType(replies, TypeResult)
	require.Len(t, results, 1)
	res := results[0].Data
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "dl", results[0].ID)
	assert.Equal(t, "passthrough", res.Strategy)
	assert.Equal(t, filepath.Join(h.OutputDir, "My_Clip.ts"), res.OutputFile)

	data, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "<s0><s1>", string(data))

	progress := byType(replies, TypeProgress)
	require.NotEmpty(t, progress)
	assert.Equal(t, 100.0, progress[len(progress)-1].Percentage)
}

func TestServeDownloadFailure(t *testing.T) {
	srv := segmentServer(t)

	replies := serve(t, newHost(t, ""), frames(t, Message{
		Type: TypeDownload,
		Data: []byte(fmt.Sprintf(`{"video_url":%q}`, srv.URL+"/gone.m3u8")),
	}))
	results := byType(replies, TypeResult)
	require.Len(t, results, 1)
	assert.False(t, results[0].Data.Success)
	assert.Contains(t, results[0].Data.Error, "404")
}

func TestServeMergeSegments(t *testing.T) {
	srv := segmentServer(t)
	h := newHost(t, fakeFFmpeg(t))

	replies := serve(t, h, frames(t, Message{
		Type: TypeMergeSegments,
		ID:   "m",
		Data: []byte(fmt.Sprintf(`{"segments":[%q,%q,%q],"filename":"show","quality":"Unknown"}`,
			srv.URL+"/s0.ts", srv.URL+"/missing.ts", srv.URL+"/s2.ts")),
	}))

	require.Len(t, byType(replies, TypeStatus), 1)
	results := byType(replies, TypeResult)
	require.Len(t, results, 1)
	res := results[0].Data
	require.True(t, res.Success, res.Error)
	assert.Equal(t, filepath.Join(h.OutputDir, "show_merged.mp4"), res.OutputFile)
	assert.Equal(t, 2, res.SegmentsDownloaded)
	assert.Equal(t, 1, res.SegmentsFailed)
	assert.Equal(t, 3, res.TotalSegments)

	data, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "<s0><s2>", string(data))
}

func TestServeMergeSegmentsEmpty(t *testing.T) {
	replies := serve(t, newHost(t, ""), frames(t, Message{Type: TypeMergeSegments, Data: []byte(`{"segments":[]}`)}))
	results := byType(replies, TypeResult)
	require.Len(t, results, 1)
	assert.False(t, results[0].Data.Success)
	assert.Equal(t, "segment list is empty", results[0].Data.Error)
}

func TestProgressReplyKeepsZeroPercentage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Reply{Type: TypeProgress, Message: "starting"}))
	assert.Contains(t, string(buf.Bytes()[4:]), `"percentage":0`)
}
