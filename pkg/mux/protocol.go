package mux

// Mode selects how the engine treats the audio stream.
type Mode string

const (
	// ModeCopy remuxes both streams without re-encoding.
	ModeCopy Mode = "copy"
	// ModeTranscode keeps the video stream and re-encodes audio to AAC.
	ModeTranscode Mode = "transcode"
)

// RequestType names a message posted to an engine.
type RequestType string

const (
	RequestInit  RequestType = "init"
	RequestMerge RequestType = "merge"
)

// Request is a message posted to an engine instance.
type Request struct {
	Type  RequestType
	Video []byte
	Audio []byte
	Mode  Mode
}

// EventType names a message an engine posts back.
type EventType string

const (
	EventReady    EventType = "ready"
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventError    EventType = "error"
	EventDone     EventType = "done"
	EventFatal    EventType = "fatal"
)

// Stages reported through progress events while a merge runs.
const (
	StageWritingInput  = "writing_input"
	StageRunningFFmpeg = "running_ffmpeg"
	StageReadingOutput = "reading_output"
)

// Event is a message emitted by an engine instance. Only the fields that
// belong to Type are set.
type Event struct {
	Type   EventType
	Stage  string // progress
	Data   string // log, error
	Buffer []byte // done
	Error  string // fatal
}

// Terminal reports whether no further events follow e for the current request.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventFatal
}
