package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/craftmeet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		msg       string
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", types.ErrConfig, false},
		{http.StatusTooManyRequests, "slow down", types.ErrRateLimited, true},
		{http.StatusGatewayTimeout, "timeout", types.ErrTimeout, true},
		{http.StatusBadRequest, "insufficient quota", types.ErrRateLimited, false},
		{http.StatusBadRequest, "bad field", types.ErrLLM, false},
		{http.StatusBadGateway, "upstream", types.ErrLLM, true},
		{529, "overloaded", types.ErrLLM, true},
		{http.StatusInternalServerError, "boom", types.ErrLLM, true},
		{http.StatusNotFound, "no model", types.ErrLLM, false},
	}
	for _, tt := range tests {
		err := MapHTTPError(tt.status, tt.msg, "deepseek")
		assert.Equal(t, tt.code, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, "deepseek", err.Provider)
		assert.Contains(t, err.Message, tt.msg)
	}
}

func TestReadErrorMessage(t *testing.T) {
	t.Parallel()

	msg := ReadErrorMessage(strings.NewReader(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	assert.Equal(t, "model not found (type: invalid_request_error)", msg)

	assert.Equal(t, "plain failure", ReadErrorMessage(strings.NewReader("plain failure\n")))
}

func TestBuildMessages(t *testing.T) {
	t.Parallel()

	msgs := BuildMessages("", "hi")
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)

	msgs = BuildMessages("你是设计师", "hi")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "你是设计师", msgs[0].Content)
}
