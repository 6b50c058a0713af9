package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "decklens")
	assert.Contains(t, out, "scan")
	assert.Contains(t, out, "batch")
	assert.Contains(t, out, "serve")
}

func TestRootVersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "decklens version")
}

func TestScanRequiresInput(t *testing.T) {
	_, err := executeCommand(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")
}

func TestScanRejectsBadFormat(t *testing.T) {
	_, err := executeCommand(t, "scan", "deck.jpg", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestBatchRequiresArgs(t *testing.T) {
	_, err := executeCommand(t, "batch")
	require.Error(t, err)
}
