package reason

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		transient bool
	}{
		{429, KindRateLimit, true},
		{529, KindRateLimit, true},
		{500, KindServer, true},
		{503, KindServer, true},
		{408, KindConnection, true},
		{400, KindClient, false},
		{401, KindClient, false},
		{404, KindClient, false},
	}
	for _, tt := range tests {
		err := statusError(tt.status, errors.New("x"))
		assert.Equal(t, tt.kind, err.Kind, "status %d", tt.status)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		assert.Equal(t, tt.transient, IsTransient(fmt.Errorf("wrapped: %w", err)), "status %d", tt.status)
	}
}

func TestTransportError(t *testing.T) {
	err := transportError(context.Background(), errors.New("connection refused"))
	assert.True(t, IsTransient(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = transportError(ctx, errors.New("connection refused"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}

func TestOpenAIError(t *testing.T) {
	err := openAIError(context.Background(), &openai.APIError{HTTPStatusCode: 429, Message: "slow down"})
	assert.True(t, IsTransient(err))

	err = openAIError(context.Background(), &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")})
	assert.True(t, IsTransient(err))

	err = openAIError(context.Background(), &openai.APIError{HTTPStatusCode: 400, Message: "bad request"})
	assert.False(t, IsTransient(err))
}

func TestIsTransient_PlainErrors(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("x")))
	assert.False(t, IsMalformed(errors.New("x")))
}
