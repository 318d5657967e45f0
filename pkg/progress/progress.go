// Package progress turns per-phase counters into a single stream of
// percentage events for one download run.
package progress

import (
	"math"
	"sync"
)

// Phase names used by the download pipeline.
const (
	PhaseFetchVideo = "fetch-video"
	PhaseFetchAudio = "fetch-audio"
	PhaseAssemble   = "assemble"
)

// Event is one progress update. Percentage never decreases within a run and
// is exactly 100 only on the successful terminal event.
type Event struct {
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
	Stage      string  `json:"stage,omitempty"`
	Terminal   bool    `json:"terminal"`
	Error      string  `json:"error,omitempty"`
}

// Failed reports whether e ended the run with an error.
func (e Event) Failed() bool {
	return e.Terminal && e.Error != ""
}

type Sink func(Event)

// ChannelSink delivers events to ch. Sends block, so ch must be drained.
func ChannelSink(ch chan<- Event) Sink {
	return func(ev Event) { ch <- ev }
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	return func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}

// Phase is a weighted slice of the run.
type Phase struct {
	Name   string
	Weight float64
}

// Phases weights the pipeline phases by segment counts: each fetch phase by
// its own segment count, assembly by a quarter of the total.
func Phases(videoSegments, audioSegments int) []Phase {
	var phases []Phase
	if videoSegments > 0 {
		phases = append(phases, Phase{Name: PhaseFetchVideo, Weight: float64(videoSegments)})
	}
	if audioSegments > 0 {
		phases = append(phases, Phase{Name: PhaseFetchAudio, Weight: float64(audioSegments)})
	}
	assemble := math.Max(1, math.Ceil(float64(videoSegments+audioSegments)/4))
	return append(phases, Phase{Name: PhaseAssemble, Weight: assemble})
}

// Reporter computes weighted percentages and forwards them to a sink.
type Reporter struct {
	sink Sink

	mu       sync.Mutex
	offsets  map[string]float64
	weights  map[string]float64
	total    float64
	last     float64
	terminal bool
}

// NewReporter creates a reporter over phases. A nil sink discards events.
func NewReporter(sink Sink, phases ...Phase) *Reporter {
	r := &Reporter{
		sink:    sink,
		offsets: make(map[string]float64, len(phases)),
		weights: make(map[string]float64, len(phases)),
	}
	for _, p := range phases {
		if p.Weight <= 0 {
			continue
		}
		r.offsets[p.Name] = r.total
		r.weights[p.Name] = p.Weight
		r.total += p.Weight
	}
	return r
}

// Advance reports done of total units finished in phase.
func (r *Reporter) Advance(phase string, done, total int, msg string) {
	fraction := 1.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	r.Stage(phase, "", fraction, msg)
}

// Stage reports a named stage reached fraction of the way through phase.
// Unknown phases keep the current percentage.
func (r *Reporter) Stage(phase, stage string, fraction float64, msg string) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}

	pct := r.last
	if weight, ok := r.weights[phase]; ok && r.total > 0 {
		fraction = math.Min(math.Max(fraction, 0), 1)
		pct = (r.offsets[phase] + weight*fraction) * 100 / r.total
	}
	// 100 is reserved for Done
	pct = math.Min(math.Max(pct, r.last), 99)
	r.last = pct
	r.mu.Unlock()

	r.emit(Event{Percentage: pct, Message: msg, Stage: stage})
}

// Done ends the run successfully at 100%.
func (r *Reporter) Done(msg string) {
	if !r.finish(100) {
		return
	}
	r.emit(Event{Percentage: 100, Message: msg, Terminal: true})
}

// Fail ends the run with err at the current percentage.
func (r *Reporter) Fail(err error) {
	r.mu.Lock()
	pct := r.last
	r.mu.Unlock()
	if !r.finish(pct) {
		return
	}

	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	r.emit(Event{Percentage: pct, Message: msg, Terminal: true, Error: msg})
}

// Percentage returns the last reported percentage.
func (r *Reporter) Percentage() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reporter) finish(pct float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return false
	}
	r.terminal = true
	r.last = pct
	return true
}

func (r *Reporter) emit(ev Event) {
	if r.sink != nil {
		r.sink(ev)
	}
}
