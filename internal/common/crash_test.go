package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	dir := t.TempDir()
	InstallCrashHandler(dir, func() map[string]string {
		return map[string]string{"pending": "3", "queues": "faces"}
	})
	t.Cleanup(resetCrashHandler)

	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)

	assert.Contains(t, report, "=== INFERD CRASH REPORT ===")
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "pending: 3")
	assert.Contains(t, report, "queues: faces")
	assert.Contains(t, report, "=== END CRASH REPORT ===")
}

func TestWriteCrashFile_InfoPanicDoesNotHideCrash(t *testing.T) {
	dir := t.TempDir()
	InstallCrashHandler(dir, func() map[string]string { panic("broken") })
	t.Cleanup(resetCrashHandler)

	path := WriteCrashFile("original", "")
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "original")
	assert.Contains(t, string(data), "unavailable: broken")
}

func resetCrashHandler() {
	crashMu.Lock()
	defer crashMu.Unlock()
	crashLogDir = "./logs"
	crashInfo = nil
}
