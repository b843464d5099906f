package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "contention"})
	cmd.SetOut(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range NewRootCommand().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "sweep", "contention", "reconcile"} {
		assert.True(t, names[want], want)
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "json", map[string]int{"swept": 2}, nil))
	assert.JSONEq(t, `{"swept": 2}`, buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, "text", nil, func(w io.Writer) { io.WriteString(w, "swept 2\n") }))
	assert.Equal(t, "swept 2\n", buf.String())
}
