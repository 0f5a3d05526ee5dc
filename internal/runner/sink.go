package runner

import "time"

// Outcome describes one finished operation.
type Outcome struct {
	Run     int // ordinal of the run that dispatched the operation
	Seq     int // dispatch sequence number within the run
	Index   int // catalog index, always Seq mod catalog size
	Name    string
	Latency time.Duration
	Err     error
}

// ResultSink records operation outcomes. Record is called from many goroutines
// at once and, for dispatch-only runs, possibly after the run has returned.
type ResultSink interface {
	Record(Outcome)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(Outcome)

func (f SinkFunc) Record(o Outcome) { f(o) }

type discardSink struct{}

func (discardSink) Record(Outcome) {}

// Discard drops every outcome.
var Discard ResultSink = discardSink{}

// MultiSink fans an outcome out to every non-nil sink.
func MultiSink(sinks ...ResultSink) ResultSink {
	filtered := make([]ResultSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return Discard
	case 1:
		return filtered[0]
	}
	return multiSink(filtered)
}

type multiSink []ResultSink

func (m multiSink) Record(o Outcome) {
	for _, s := range m {
		s.Record(o)
	}
}

type namer interface {
	Name() string
}

func nameOf(req Requester) string {
	if n, ok := req.(namer); ok {
		return n.Name()
	}
	return ""
}
