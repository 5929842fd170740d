package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Members     int `json:"members"`
	Connections int `json:"connections"`
}

func TestRoundTrip(t *testing.T) {
	data, err := Marshal(stats{Members: 2, Connections: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"members":2,"connections":3}`, string(data))

	var s stats
	require.NoError(t, Unmarshal([]byte(`{"members":5,"connections":7}`), &s))
	assert.Equal(t, stats{Members: 5, Connections: 7}, s)
}

func TestEncoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(stats{Members: 1}))
	assert.JSONEq(t, `{"members":1,"connections":0}`, buf.String())
}
