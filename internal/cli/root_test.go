package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewRootCommand verifies the command tree and global flags.
func TestNewRootCommand(t *testing.T) {
	rootCmd := NewRootCommand()

	assert.Equal(t, "dockports", rootCmd.Use)

	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "scan")

	require.NotNil(t, rootCmd.PersistentFlags().Lookup("json"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

// TestServerError verifies message formatting and unwrapping, which
// Execute relies on for exit-code dispatch.
func TestServerError(t *testing.T) {
	cause := errors.New("listen tcp :7577: address already in use")
	err := &serverError{err: cause}

	assert.Equal(t, "server error: listen tcp :7577: address already in use", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	var target *serverError
	assert.True(t, errors.As(error(err), &target))
}
