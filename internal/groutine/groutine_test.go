package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoDonePropagatesName(t *testing.T) {
	var got string
	done := GoDone(context.Background(), "worker-42", func(ctx context.Context) {
		got = Name(ctx)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "goroutine MUST finish")
	}
	assert.Equal(t, "worker-42", got)
}

func TestNameWithoutLabel(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck // nil context is handled explicitly
}
