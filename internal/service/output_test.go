package service_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partialdump/internal/service"
)

func TestOutputPath(t *testing.T) {
	now := time.Date(2024, 7, 9, 14, 5, 6, 0, time.UTC)

	got, err := service.OutputPath("dumps/{{.Date}}/clinic-{{.Timestamp}}.sql", now)
	require.NoError(t, err)
	assert.Equal(t, "dumps/2024-07-09/clinic-20240709T140506.sql", got)

	got, err = service.OutputPath("plain.sql", now)
	require.NoError(t, err)
	assert.Equal(t, "plain.sql", got)

	_, err = service.OutputPath("{{.Unknown}}.sql", now)
	assert.Error(t, err)
}

func TestOpenOutput(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)

	w, path, err := service.OpenOutput(filepath.Join(dir, "{{.Date}}", "out.sql"), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-07-09", "out.sql"), path)
	_, err = w.Write([]byte("SELECT 1;\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n", string(data))
}

func TestOpenOutput_Stdout(t *testing.T) {
	for _, pattern := range []string{"", "-"} {
		w, path, err := service.OpenOutput(pattern, time.Now())
		require.NoError(t, err)
		assert.Equal(t, service.OutputStdout, path)
		assert.NoError(t, w.Close(), "closing stdout is a no-op")
	}
}
