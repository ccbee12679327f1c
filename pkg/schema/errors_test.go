package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowError_Format(t *testing.T) {
	err := NewError(ErrCodeRender, "mmdc exited with status 1")
	assert.Equal(t, "[RENDER_FAILED] mmdc exited with status 1", err.Error())

	err.WithStage(StageRender)
	assert.Equal(t, "[RENDER_FAILED] render: mmdc exited with status 1", err.Error())
}

func TestFlowError_IsByCode(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := fmt.Errorf("extract: %w", NewErrorf(ErrCodeExtraction, "read %s", "a.docx").WithCause(cause))

	assert.True(t, HasCode(err, ErrCodeExtraction))
	assert.False(t, HasCode(err, ErrCodeRender))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeExtraction, CodeOf(err))
	assert.Equal(t, "", CodeOf(cause))
}

func TestFlowError_DetailsMerge(t *testing.T) {
	err := NewError(ErrCodeRender, "failed").
		WithDetails(map[string]any{"stderr": "boom"}).
		WithDetails(map[string]any{"hints": []string{"a", "b"}})

	assert.Equal(t, "boom", err.Details["stderr"])
	assert.Equal(t, []string{"a", "b"}, Hints(fmt.Errorf("wrap: %w", err)))
	assert.Nil(t, Hints(errors.New("plain")))
}
