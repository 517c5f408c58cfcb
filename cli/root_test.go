package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/cli"
)

func TestRoot(t *testing.T) {
	t.Parallel()
	t.Run("Help", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		cmd := cli.Root()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--help"})
		err := cmd.Execute()
		require.NoError(t, err)
		require.Contains(t, buf.String(), "server")
	})

	t.Run("ServerRequiresPostgres", func(t *testing.T) {
		t.Parallel()
		cmd := cli.Root()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"server"})
		err := cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "--postgres-url")
	})
}
