package logging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_Ordering(t *testing.T) {
	assert.Less(t, VerboseLevel, DebugLevel)
	assert.Less(t, DebugLevel, InformationLevel)
	assert.Less(t, InformationLevel, WarningLevel)
	assert.Less(t, WarningLevel, ErrorLevel)
	assert.Less(t, ErrorLevel, FatalLevel)

	assert.False(t, WarningLevel.IsError())
	assert.True(t, ErrorLevel.IsError())
	assert.True(t, FatalLevel.IsError())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"verbose": VerboseLevel,
		"DEBUG":   DebugLevel,
		"info":    InformationLevel,
		"Warning": WarningLevel,
		" error ": ErrorLevel,
		"fatal":   FatalLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "Level(9)", Level(9).String())
}

func TestExceptionFromError(t *testing.T) {
	assert.Nil(t, ExceptionFromError(nil))

	root := errors.New("disk full")
	wrapped := fmt.Errorf("write segment: %w", root)

	info := ExceptionFromError(wrapped)
	require.NotNil(t, info)
	assert.Equal(t, "write segment: disk full", info.Message)
	assert.Equal(t, "*fmt.wrapError", info.Type)
	require.NotNil(t, info.Inner)
	assert.Equal(t, "disk full", info.Inner.Message)
	assert.Nil(t, info.Inner.Inner)
}

func TestValueOf(t *testing.T) {
	v := ValueOf(map[string]any{"b": []any{1, "x"}, "a": 2})

	s, ok := v.(Structure)
	require.True(t, ok)
	require.Len(t, s.Properties, 2)
	assert.Equal(t, "a", s.Properties[0].Name)
	assert.Equal(t, Scalar{Value: 2}, s.Properties[0].Value)
	assert.Equal(t, Sequence{Elements: []PropertyValue{Scalar{Value: 1}, Scalar{Value: "x"}}}, s.Properties[1].Value)

	assert.Equal(t, Scalar{Value: 3}, ValueOf(Scalar{Value: 3}))
}
