package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trainlog.log")
	logger, closer, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Info("sync finished", "new_activities", 2)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "sync finished")
	require.Contains(t, string(data), "new_activities=2")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestSafeURL(t *testing.T) {
	require.Equal(t, "https://api.example.com/api/oauth/access_token",
		SafeURL("https://user:pw@api.example.com/api/oauth/access_token?code=secret#frag"))
	require.Equal(t, "/providers/sources", SafeURL("/providers/sources?limit=100"))
}
