package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), appName)
	assert.Contains(t, buf.String(), version)
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	body := "day,revenue\n2024-01-01,10\n2024-01-02,11\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rows, err := readCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "10", rows[0]["revenue"])
	assert.Equal(t, "2024-01-02", rows[1]["day"])
}

func TestReadCSV_MalformedRowIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	// second data row is short one field
	body := "day,revenue\n2024-01-01,10\n2024-01-02\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := readCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CSV")
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := readCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open CSV")
}
