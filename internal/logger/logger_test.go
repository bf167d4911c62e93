package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesToRotatingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	log, err := Setup(logFile, "release")
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestSetup_NoFile(t *testing.T) {
	log, err := Setup("", "development")
	require.NoError(t, err)
	assert.NotNil(t, log)
}
