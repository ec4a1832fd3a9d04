package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Surface(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"make", "scan", "run", "clean", "status", "gitignore"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	require.Len(t, root.Flags, 1)
	assert.Equal(t, "config", root.Flags[0].Names()[0])
}
