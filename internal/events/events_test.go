package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KaramelBytes/datalens/internal/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(s *Subscription) []Event {
	var out []Event
	for ev := range s.C() {
		out = append(out, ev)
	}
	return out
}

func TestSubscriberReceivesConnectedThenActivities(t *testing.T) {
	b := NewBroker(8, nil)
	sub := b.Subscribe("r1")
	other := b.Subscribe("r2")

	b.Publish("r1", agent.Activity{Agent: "data_profiler", Action: "Analyzing data types"})
	b.Publish("r2", agent.Activity{Agent: "x", Action: "elsewhere"})
	b.Finish("r1", agent.StatusCompleted)

	got := drain(sub)
	require.Len(t, got, 3)
	assert.Equal(t, TypeConnected, got[0].Type)
	assert.Equal(t, "analysis_events:r1", got[0].Channel)
	assert.Equal(t, TypeActivity, got[1].Type)
	assert.Equal(t, "Analyzing data types", got[1].Activity.Action)
	assert.Equal(t, TypeFinished, got[2].Type)
	assert.Equal(t, agent.StatusCompleted, got[2].Status)
	assert.Less(t, got[0].Seq, got[1].Seq)

	other.Close()
	other.Close()
	assert.Len(t, drain(other), 2)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker(2, nil)
	sub := b.Subscribe("r")
	for i := 0; i < 10; i++ {
		b.Publish("r", agent.Activity{Action: "tick"})
	}
	assert.Equal(t, uint64(9), b.Dropped(), "connected marker plus one activity fit the buffer")
	b.Close()
	assert.Len(t, drain(sub), 2)

	late := b.Subscribe("r")
	_, open := <-late.C()
	assert.False(t, open)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBroker(0, nil)
	b.Publish("nobody", agent.Activity{Action: "x"})
	b.Finish("nobody", agent.StatusFailed)
	assert.Zero(t, b.Dropped())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf, nil)
	w.Publish("r9", agent.Activity{Agent: "insight_discovery", Action: "Detecting trends", Status: agent.StatusRunning})
	w.Publish("r9", agent.Activity{Agent: "insight_discovery", Action: "Finding patterns", Status: agent.StatusRunning})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "analysis_events:r9", first["channel"])
	assert.Equal(t, "Detecting trends", first["action"])

	core, logs := observer.New(zap.WarnLevel)
	NewLineWriter(failingWriter{}, zap.New(core)).Publish("r", agent.Activity{})
	assert.Equal(t, 1, logs.FilterMessage("event write failed").Len())
}

func TestTeeSkipsNil(t *testing.T) {
	var a, b bytes.Buffer
	s := Tee(NewLineWriter(&a, nil), nil, NewLineWriter(&b, nil))
	s.Publish("r", agent.Activity{Action: "x"})
	assert.NotZero(t, a.Len())
	assert.Equal(t, a.String(), b.String())
}
