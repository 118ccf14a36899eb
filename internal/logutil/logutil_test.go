package logutil

import (
	"testing"

	"github.com/evdnx/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]golog.Level{
		"debug":   golog.DebugLevel,
		"info":    golog.InfoLevel,
		"warning": golog.WarnLevel,
		"error":   golog.ErrorLevel,
		"fatal":   golog.FatalLevel,
	}
	for name, want := range cases {
		level, ok := ParseLevel(name)
		require.True(t, ok, name)
		assert.Equal(t, want, level)
	}

	_, ok := ParseLevel("verbose")
	assert.False(t, ok)
}

func TestSetLevelRejectsUnknownName(t *testing.T) {
	require.Error(t, SetLevel("verbose"))
	assert.NotNil(t, Default())
}

func TestSetLevelRebuildsSharedLogger(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	assert.NotNil(t, Default())

	require.NoError(t, SetLevel("info"))
}
