package events

import (
	"context"
	"testing"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_DisabledIsNoop(t *testing.T) {
	p, err := NewPublisher(config.EventsConfig{})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: AlertCreated}))
	assert.NoError(t, p.Close())
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(config.EventsConfig{Enabled: true, Topic: "t"})
	assert.Error(t, err)
	_, err = NewPublisher(config.EventsConfig{Enabled: true, Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewPublisher(config.EventsConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "42", Event{ProductID: 42, RunID: "run"}.Key())
	assert.Equal(t, "run", Event{RunID: "run"}.Key())
}
