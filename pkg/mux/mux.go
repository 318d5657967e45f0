// Package mux drives an external muxing engine through a small
// message-passing protocol. An engine instance is single-shot: it is spawned,
// initialised, given exactly one merge request and then torn down.
package mux

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const DefaultReadyTimeout = 7 * time.Second

var (
	// ErrEngineUnavailable means the engine could not be started or never
	// reported ready.
	ErrEngineUnavailable = errors.New("muxing engine unavailable")
	// ErrTerminated is returned when posting to an instance that has stopped.
	ErrTerminated = errors.New("engine instance terminated")
)

// FatalError is a terminal failure reported by the engine for a merge.
type FatalError struct {
	Mode    Mode
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s mux failed: %s", e.Mode, e.Message)
}

// Engine creates fresh engine instances.
type Engine interface {
	Spawn(ctx context.Context) (Instance, error)
}

// Instance is one running engine. Events is closed once the instance stops.
type Instance interface {
	Post(req Request) error
	Events() <-chan Event
	Terminate()
}

// Options tunes a single MergeOnce call.
type Options struct {
	// ReadyTimeout bounds the wait for the ready event after init.
	ReadyTimeout time.Duration
	// OnEvent observes every non-terminal event.
	OnEvent func(Event)
	Log     zerolog.Logger
}

// MergeOnce runs a single merge on a new instance of engine and returns the
// produced container.
func MergeOnce(ctx context.Context, engine Engine, video, audio []byte, mode Mode, opts Options) ([]byte, error) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	log := opts.Log.With().Str("mode", string(mode)).Logger()

	inst, err := engine.Spawn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer inst.Terminate()

	if err := inst.Post(Request{Type: RequestInit}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := awaitReady(ctx, inst, opts, log); err != nil {
		return nil, err
	}

	if err := inst.Post(Request{Type: RequestMerge, Video: video, Audio: audio, Mode: mode}); err != nil {
		return nil, &FatalError{Mode: mode, Message: err.Error()}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-inst.Events():
			if !ok {
				return nil, &FatalError{Mode: mode, Message: "engine exited without a result"}
			}
			switch ev.Type {
			case EventDone:
				log.Debug().Int("bytes", len(ev.Buffer)).Msg("merge done")
				return ev.Buffer, nil
			case EventFatal:
				return nil, &FatalError{Mode: mode, Message: ev.Error}
			default:
				observe(ev, opts, log)
			}
		}
	}
}

func awaitReady(ctx context.Context, inst Instance, opts Options, log zerolog.Logger) error {
	timer := time.NewTimer(opts.ReadyTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: not ready after %s", ErrEngineUnavailable, opts.ReadyTimeout)
		case ev, ok := <-inst.Events():
			if !ok {
				return fmt.Errorf("%w: engine exited during init", ErrEngineUnavailable)
			}
			switch ev.Type {
			case EventReady:
				return nil
			case EventFatal:
				return fmt.Errorf("%w: %s", ErrEngineUnavailable, ev.Error)
			default:
				observe(ev, opts, log)
			}
		}
	}
}

func observe(ev Event, opts Options, log zerolog.Logger) {
	switch ev.Type {
	case EventLog:
		log.Debug().Msg(ev.Data)
	case EventError:
		log.Warn().Msg(ev.Data)
	}
	if opts.OnEvent != nil {
		opts.OnEvent(ev)
	}
}
