package mux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg answers -version, concatenates its inputs into the last argument
// and fails stream-copy runs when failCopy is set.
func fakeFFmpeg(t *testing.T, failCopy bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}

	fail := ""
	if failCopy {
		fail = `case " $* " in
  *" -c copy "*) echo "Could not find tag for codec opus in stream #1" >&2; exit 1;;
esac
`
	}

	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1-test"
  exit 0
fi
` + fail + `in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$in $a"; fi
  prev="$a"
  out="$a"
done
echo "Input #0, mpegts" >&2
echo "Stream mapping:" >&2
cat $in > "$out"
`
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestFFmpegEngineMerge(t *testing.T) {
	engine := &FFmpeg{Path: fakeFFmpeg(t, false), Log: zerolog.Nop()}

	var events []Event
	out, err := MergeOnce(context.Background(), engine, []byte("video"), []byte("audio"), ModeCopy, Options{
		Log:     zerolog.Nop(),
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.Equal(t, "videoaudio", string(out))

	var stages, logs []string
	for _, ev := range events {
		switch ev.Type {
		case EventProgress:
			stages = append(stages, ev.Stage)
		case EventLog:
			logs = append(logs, ev.Data)
		}
	}
	assert.Equal(t, []string{StageWritingInput, StageRunningFFmpeg, StageReadingOutput}, stages)
	assert.Contains(t, logs, "Stream mapping:")
}

func TestFFmpegEngineCopyFailure(t *testing.T) {
	engine := &FFmpeg{Path: fakeFFmpeg(t, true), Log: zerolog.Nop()}

	_, err := MergeOnce(context.Background(), engine, []byte("v"), []byte("a"), ModeCopy, Options{Log: zerolog.Nop()})
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, fatal.Message, "Could not find tag for codec opus")

	// a fresh instance in transcode mode succeeds
	out, err := MergeOnce(context.Background(), engine, []byte("v"), []byte("a"), ModeTranscode, Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "va", string(out))
}

func TestFFmpegEngineMissingBinary(t *testing.T) {
	engine := &FFmpeg{Path: filepath.Join(t.TempDir(), "does-not-exist"), Log: zerolog.Nop()}

	_, err := MergeOnce(context.Background(), engine, []byte("v"), []byte("a"), ModeCopy, Options{Log: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = engine.Lookup()
	assert.Error(t, err)
}

func TestFFmpegInstanceRemovesWorkDir(t *testing.T) {
	engine := &FFmpeg{Path: fakeFFmpeg(t, false), Log: zerolog.Nop()}

	inst, err := engine.Spawn(context.Background())
	require.NoError(t, err)
	dir := inst.(*ffmpegInstance).dir
	assert.DirExists(t, dir)

	inst.Terminate()
	assert.NoDirExists(t, dir)
	assert.ErrorIs(t, inst.Post(Request{Type: RequestInit}), ErrTerminated)
}

func TestFFmpegConcat(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}

	// the fake copies the concat list itself to the output
	script := `#!/bin/sh
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then list="$a"; fi
  prev="$a"
  out="$a"
done
cat "$list" > "$out"
`
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	engine := &FFmpeg{Path: bin, Log: zerolog.Nop()}
	output := filepath.Join(dir, "out.txt")
	files := []string{filepath.Join(dir, "segment_0000.ts"), filepath.Join(dir, "it's.ts")}
	require.NoError(t, engine.Concat(context.Background(), files, output, nil))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "file '"+files[0]+"'", lines[0])
	assert.Equal(t, `file '`+dir+`/it'\''s.ts'`, lines[1])

	assert.Error(t, engine.Concat(context.Background(), nil, output, nil))
}
