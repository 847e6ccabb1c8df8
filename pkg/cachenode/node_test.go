package cachenode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeDefaultsToUnknown(t *testing.T) {
	n := New("node-1", "127.0.0.1", 7000)
	assert.Equal(t, "node-1", n.ID)
	assert.Equal(t, StatusUnknown, n.Status())
	assert.Equal(t, "127.0.0.1:7000", n.Address())
}

func TestSetStatus(t *testing.T) {
	n := New("node-1", "127.0.0.1", 7000)
	n.SetStatus(StatusHealthy)
	assert.Equal(t, StatusHealthy, n.Status())
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUnknown:     "UNKNOWN",
		StatusHealthy:      "HEALTHY",
		StatusDegraded:     "DEGRADED",
		StatusUnreachable:  "UNREACHABLE",
		StatusStale:        "STALE",
		Status(99):         "UNKNOWN",
	}
	for status, expected := range cases {
		assert.Equal(t, expected, status.String())
	}
}
