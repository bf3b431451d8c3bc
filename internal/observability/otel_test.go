package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("garbage, =x"))
	assert.Equal(t, map[string]string{"api-key": "abc", "x-team": "legal"}, parseHeaders(" api-key=abc ,x-team=legal,bad"))
}

func TestOtelConfigFromEnvClampsRatio(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLER_RATIO", "7")
	cfg := OtelConfigFromEnv("svc", "test", "dev")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}
