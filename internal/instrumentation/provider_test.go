package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	require.NotNil(t, provider.Metrics())

	// Recording on the no-op recorder must not panic.
	provider.Metrics().RecordHTTPRequest(context.Background(), "GET", "/api/mailing/list", 200, time.Millisecond)
	provider.Metrics().RecordGmailOperation(context.Background(), "messages.list", StatusSuccess, "", time.Millisecond)
	provider.Metrics().RecordOAuthTokenRefresh(context.Background(), "success")
	provider.Metrics().RecordOAuthLink(context.Background(), "failure")

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceVersion = "test"

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	assert.True(t, provider.Enabled())
	require.NotNil(t, provider.Metrics())

	provider.Metrics().RecordHTTPRequest(context.Background(), "POST", "/api/mailing/send", 500, 42*time.Millisecond)
	provider.Metrics().RecordGmailOperation(context.Background(), "messages.send", StatusError, "user@example.com", time.Second)
}

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("OTEL_SERVICE_NAME", "mailgate-test")

	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "mailgate-test", cfg.ServiceName)
}
