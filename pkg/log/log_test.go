package log

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	logger := New(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	// Unknown levels fall back to info.
	logger = New(Config{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestGlobalLoggerChaining(t *testing.T) {
	// Leveled calls must chain directly on the accessor result.
	L().Debug().Str("check", "global").Msg("global logger chain")
	require.NotNil(t, L())
	assert.Same(t, L(), L())
}

func TestCtx(t *testing.T) {
	child := New(Config{Level: "error"})
	ctx := WithLogger(context.Background(), child)
	got := Ctx(ctx)
	assert.Equal(t, zerolog.ErrorLevel, got.GetLevel())

	// Without an injected logger the global is returned.
	fallback := Ctx(context.Background())
	assert.Equal(t, L().GetLevel(), fallback.GetLevel())
}
