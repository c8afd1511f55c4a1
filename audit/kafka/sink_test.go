package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/roleAuth/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.records = append(f.records, r)
	if promise != nil {
		promise(r, f.err)
	}
}

func TestSinkProducesKeyedJSON(t *testing.T) {
	p := &fakeProducer{}
	s, err := NewSink(p, Config{})
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Emit(context.Background(), audit.Event{
		Timestamp: ts,
		EventType: audit.EventRoleSwitch,
		Subject:   "u@x.com",
		FromRole:  "PM",
		Role:      "BA",
		Success:   true,
	})

	require.Len(t, p.records, 1)
	rec := p.records[0]
	assert.Equal(t, DefaultTopic, rec.Topic)
	assert.Equal(t, "u@x.com", string(rec.Key))
	assert.Equal(t, ts, rec.Timestamp)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, audit.EventRoleSwitch, string(rec.Headers[0].Value))

	var got audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, "BA", got.Role)
	assert.Zero(t, s.Failed())
}

func TestSinkCountsAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &fakeProducer{err: errors.New("broker down")}
	s, err := NewSink(p, Config{Topic: "audit", Logger: zap.New(core)})
	require.NoError(t, err)

	s.Emit(context.Background(), audit.Event{EventType: audit.EventLoginSuccess, Subject: "u@x.com"})

	assert.Equal(t, uint64(1), s.Failed())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "audit", logs.All()[0].ContextMap()["topic"])
}

func TestNewSinkRejectsNilProducer(t *testing.T) {
	_, err := NewSink(nil, Config{})
	assert.Error(t, err)
}
