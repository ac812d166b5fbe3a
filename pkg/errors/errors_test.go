package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/shopfloor/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "workflow",
			ID:       "production-start",
		}
		assert.Equal(t, "workflow with ID production-start not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("tab", "quality")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("steps", nil, "cannot be empty")
		assert.Equal(t, "validation failed for field steps: cannot be empty", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid configuration"}
		assert.Equal(t, "validation failed: invalid configuration", err.Error())
	})
}

func TestStateKeyError(t *testing.T) {
	err := &pkgerrors.StateKeyError{Key: "bogus"}
	assert.True(t, errors.Is(err, pkgerrors.ErrUnknownKey))
	assert.True(t, pkgerrors.IsValidationError(err))
	assert.Contains(t, err.Error(), "bogus")
}

func TestAPIError(t *testing.T) {
	t.Run("404 is not found", func(t *testing.T) {
		err := pkgerrors.NewAPIError("production-history", 404, "missing")
		assert.True(t, pkgerrors.IsNotFound(err))
		assert.False(t, errors.Is(err, pkgerrors.ErrServerFault))
	})

	t.Run("500 is a server fault", func(t *testing.T) {
		err := pkgerrors.NewAPIError("production-active", 500, "boom")
		assert.True(t, errors.Is(err, pkgerrors.ErrServerFault))
		assert.Equal(t, "API error for production-active (status 500): boom", err.Error())
	})
}

func TestScriptError(t *testing.T) {
	assert.Nil(t, pkgerrors.Recovered("timer", nil))

	cause := errors.New("nil map write")
	err := pkgerrors.Recovered("poll:production-active", cause)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "script fault in poll:production-active: nil map write", err.Error())

	str := pkgerrors.Recovered("socket", "index out of range")
	assert.Nil(t, str.Unwrap())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     pkgerrors.Category
		critical bool
	}{
		{"nil", nil, pkgerrors.CategoryUnknown, false},
		{"script", pkgerrors.Recovered("x", "boom"), pkgerrors.CategoryScript, true},
		{"workflow misuse", pkgerrors.NewWorkflowError("start", "a", pkgerrors.ErrWorkflowActive), pkgerrors.CategoryMisuse, false},
		{"bare misuse sentinel", pkgerrors.ErrNoActiveWorkflow, pkgerrors.CategoryMisuse, false},
		{"404", pkgerrors.NewAPIError("r", 404, ""), pkgerrors.CategoryTransient, false},
		{"deadline", context.DeadlineExceeded, pkgerrors.CategoryTransient, false},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), pkgerrors.CategoryTransient, false},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, pkgerrors.CategoryTransient, false},
		{"server", pkgerrors.WrapResource("fetch", "resource", "r", pkgerrors.NewAPIError("r", 503, "")), pkgerrors.CategoryServer, true},
		{"parse", pkgerrors.WrapParse("json", "", errors.New("unexpected EOF")), pkgerrors.CategoryServer, true},
		{"other", errors.New("something"), pkgerrors.CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pkgerrors.Classify(tt.err)
			assert.Equal(t, tt.want, got, "category %s", got)
			assert.Equal(t, tt.critical, pkgerrors.IsCritical(tt.err))
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	assert.Nil(t, pkgerrors.WrapResource("fetch", "resource", "", nil))
	assert.Nil(t, pkgerrors.WrapParse("yaml", "f.yaml", nil))
	assert.Nil(t, pkgerrors.WrapValidation("f", nil))

	base := errors.New("bad")
	wrapped := pkgerrors.WrapResource("dial", "socket", "ws://x", base)
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "failed to dial socket ws://x: bad", wrapped.Error())
}
