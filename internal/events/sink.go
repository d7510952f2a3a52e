package events

import (
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
)

// LineWriter writes every activity as one JSON object per line. Write
// failures are logged and never returned.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *zap.Logger
}

func NewLineWriter(w io.Writer, log *zap.Logger) *LineWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LineWriter{enc: json.NewEncoder(w), log: log.Named("events")}
}

type line struct {
	Channel string `json:"channel"`
	agent.Activity
}

// Publish implements Sink.
func (l *LineWriter) Publish(runID string, act agent.Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(line{Channel: Channel(runID), Activity: act}); err != nil {
		l.log.Warn("event write failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// Tee publishes to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Publish(runID string, act agent.Activity) {
	for _, s := range m {
		s.Publish(runID, act)
	}
}

// Finish closes the run on every sink that supports it.
func (m multi) Finish(runID string, status agent.Status) {
	for _, s := range m {
		if f, ok := s.(interface {
			Finish(string, agent.Status)
		}); ok {
			f.Finish(runID, status)
		}
	}
}
