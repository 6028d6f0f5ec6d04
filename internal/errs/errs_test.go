package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileNotFoundError(t *testing.T) {
	err := &FileNotFoundError{Path: "cards/task-1.md"}
	assert.Equal(t, "file not found: cards/task-1.md", err.Error())
	assert.Equal(t, CodeFileNotFound, err.Code())
}

func TestParseErrorUnwrap(t *testing.T) {
	underlying := errors.New("bad indent")
	err := &ParseError{Kind: "yaml", Input: "---\n", Underlying: underlying}
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, CodeParseError, err.Code())
	assert.Contains(t, err.Error(), "yaml parse error")

	bare := &ParseError{Kind: "query", Input: "priority:x"}
	assert.Nil(t, bare.Unwrap())
	assert.Contains(t, bare.Error(), "query parse error")
}

func TestCycleError(t *testing.T) {
	err := &CycleError{Path: []string{"a", "b", "a"}}
	assert.Equal(t, CodeCycleDetected, err.Code())
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestTokenLimitError(t *testing.T) {
	err := &TokenLimitError{Current: 5000, Limit: 4000}
	assert.Equal(t, CodeTokenLimit, err.Code())
	assert.Contains(t, err.Error(), "5000 > 4000")
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Method: "read_context", Limit: 10, WindowSeconds: 60, CurrentCount: 10, RetryAfterSeconds: 12}
	assert.Equal(t, CodeRateLimit, err.Code())
	assert.Contains(t, err.Error(), "read_context")
}

func TestConfigErrorUnwrap(t *testing.T) {
	underlying := errors.New("missing token_limit")
	err := &ConfigError{Path: ".cuedeck/config.toml", Underlying: underlying}
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, CodeInternal, err.Code())
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "priority", Reason: "must be one of low|medium|high"}
	assert.Equal(t, CodeValidation, err.Code())
	assert.Contains(t, err.Error(), "priority")
}

func TestNewNetworkError(t *testing.T) {
	underlying := errors.New("connection reset")
	err := NewNetworkError("handshake", underlying)
	assert.False(t, err.At.IsZero())
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, CodeInternal, err.Code())
}

func TestDependencyNotFoundError(t *testing.T) {
	err := &DependencyNotFoundError{TaskID: "task-1", DepID: "task-99"}
	assert.Equal(t, CodeValidation, err.Code())
	assert.Contains(t, err.Error(), "task-99")
}

func TestErrorsAsDiscriminatesKinds(t *testing.T) {
	var err error = &LockedError{PID: 42}

	var locked *LockedError
	assert.True(t, errors.As(err, &locked))
	assert.Equal(t, 42, locked.PID)

	var stale *StaleCacheError
	assert.False(t, errors.As(err, &stale))
}
