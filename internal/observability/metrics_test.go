package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/auth/login", "POST", 200, 10*time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 200, 12*time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 401, 8*time.Millisecond)

	assert.Equal(t, int64(2), m.RequestCount("/auth/login", "POST", 200))
	assert.Equal(t, int64(1), m.RequestCount("/auth/login", "POST", 401))
	assert.Equal(t, int64(0), m.RequestCount("/auth/register", "POST", 200))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/auth/login", "POST", "INVALID_CREDENTIALS")
	assert.Equal(t, int64(0), m.RequestCount("/auth/login", "POST", 200))
}
