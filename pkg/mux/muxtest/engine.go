// Package muxtest provides an in-process mux.Engine for tests.
package muxtest

import (
	"context"
	"sync"

	"github.com/hollowness-inside/hlsgrab/pkg/mux"
)

// Engine is a scripted mux.Engine. By default every instance becomes ready
// on init and answers a merge with the video bytes followed by the audio
// bytes.
type Engine struct {
	// Merge returns the events emitted for a merge request.
	Merge func(req mux.Request) []mux.Event
	// InitFatal, when set, is reported as a fatal event on init.
	InitFatal string
	// NeverReady suppresses the ready event.
	NeverReady bool
	// SpawnErr fails Spawn.
	SpawnErr error

	mu         sync.Mutex
	merges     []mux.Request
	spawns     int
	terminated int
}

func (e *Engine) Spawn(ctx context.Context) (mux.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SpawnErr != nil {
		return nil, e.SpawnErr
	}
	e.spawns++
	return &instance{engine: e, events: make(chan mux.Event, 32)}, nil
}

// Merges returns the merge requests received so far, in order.
func (e *Engine) Merges() []mux.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]mux.Request(nil), e.merges...)
}

// Modes returns the mode of every merge request received so far.
func (e *Engine) Modes() []mux.Mode {
	var modes []mux.Mode
	for _, req := range e.Merges() {
		modes = append(modes, req.Mode)
	}
	return modes
}

// Spawns reports how many instances were created.
func (e *Engine) Spawns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawns
}

// Terminated reports how many instances were torn down.
func (e *Engine) Terminated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// Concat answers a merge with video followed by audio.
func Concat(req mux.Request) []mux.Event {
	out := append(append([]byte(nil), req.Video...), req.Audio...)
	return []mux.Event{
		{Type: mux.EventProgress, Stage: mux.StageWritingInput},
		{Type: mux.EventProgress, Stage: mux.StageRunningFFmpeg},
		{Type: mux.EventProgress, Stage: mux.StageReadingOutput},
		{Type: mux.EventDone, Buffer: out},
	}
}

// FailCopy fails stream-copy merges and concatenates otherwise.
func FailCopy(req mux.Request) []mux.Event {
	if req.Mode == mux.ModeCopy {
		return []mux.Event{
			{Type: mux.EventError, Data: "[copy-fail] codec not supported"},
			{Type: mux.EventFatal, Error: "codec not supported in container"},
		}
	}
	return Concat(req)
}

// FailAll fails every merge.
func FailAll(req mux.Request) []mux.Event {
	return []mux.Event{{Type: mux.EventFatal, Error: string(req.Mode) + " failed"}}
}

type instance struct {
	engine *Engine
	events chan mux.Event
	once   sync.Once
	done   bool
}

func (i *instance) Post(req mux.Request) error {
	if i.done {
		return mux.ErrTerminated
	}

	e := i.engine
	switch req.Type {
	case mux.RequestInit:
		switch {
		case e.InitFatal != "":
			i.events <- mux.Event{Type: mux.EventFatal, Error: e.InitFatal}
		case !e.NeverReady:
			i.events <- mux.Event{Type: mux.EventLog, Data: "engine loaded"}
			i.events <- mux.Event{Type: mux.EventReady}
		}
	case mux.RequestMerge:
		e.mu.Lock()
		e.merges = append(e.merges, req)
		e.mu.Unlock()

		merge := e.Merge
		if merge == nil {
			merge = Concat
		}
		for _, ev := range merge(req) {
			i.events <- ev
		}
	}
	return nil
}

func (i *instance) Events() <-chan mux.Event {
	return i.events
}

func (i *instance) Terminate() {
	i.once.Do(func() {
		i.done = true
		close(i.events)
		i.engine.mu.Lock()
		i.engine.terminated++
		i.engine.mu.Unlock()
	})
}
