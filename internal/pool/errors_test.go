package pool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransport(t *testing.T) {
	assert.True(t, IsTransport(fmt.Errorf("%w: status 502", ErrTransport)))
	assert.False(t, IsTransport(&APIError{Status: 400, Body: "invalid volume"}))
	assert.False(t, IsTransport(errors.New("other")))
}

func TestIsUnknownPosition(t *testing.T) {
	assert.True(t, IsUnknownPosition(&APIError{Status: 404, Body: "nope"}))
	assert.True(t, IsUnknownPosition(&APIError{Status: 400, Body: "Position not found"}))
	assert.True(t, IsUnknownPosition(&APIError{Status: 422, Body: "ERR_POSITION_NOT_FOUND"}))
	assert.False(t, IsUnknownPosition(&APIError{Status: 400, Body: "market closed"}))
	assert.False(t, IsUnknownPosition(fmt.Errorf("%w: timeout", ErrTransport)))

	wrapped := fmt.Errorf("closing: %w", &APIError{Status: 404, Body: ""})
	assert.True(t, IsUnknownPosition(wrapped))
}

func TestIsBrokerRejected(t *testing.T) {
	assert.True(t, IsBrokerRejected(&APIError{Status: 400, Body: "invalid volume"}))
	assert.True(t, IsBrokerRejected(&APIError{Status: 404, Body: ""}))
	assert.False(t, IsBrokerRejected(&APIError{Status: 429, Body: "slow down"}))
	assert.False(t, IsBrokerRejected(fmt.Errorf("%w: reset", ErrTransport)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: reset", ErrTransport)))
	assert.True(t, IsRetryable(&APIError{Status: 429, Body: ""}))
	assert.False(t, IsRetryable(&APIError{Status: 400, Body: "invalid volume"}))
	assert.False(t, IsRetryable(nil))
}
