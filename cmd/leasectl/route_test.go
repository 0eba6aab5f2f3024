package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/lease_go_server/internal/jobs"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRouteCommand(t *testing.T) {
	dir := t.TempDir()
	lease := filepath.Join(dir, "lease.txt")
	require.NoError(t, os.WriteFile(lease, []byte("The tenant shall pay a monthly rent of 1200 GBP."), 0o644))
	configPath := filepath.Join(dir, "config.yaml")

	tests := []struct {
		name         string
		question     string
		wantPath     jobs.Path
		wantReason   string
		alternatives bool
	}{
		{"targeted question", "What is the monthly rent?", jobs.PathQuick, jobs.ReasonQuickEligible, false},
		{"broad question", "Give me a summary of everything", jobs.PathBackground, jobs.ReasonBroadQuestion, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "route", "--config", configPath, "--file", lease, "--question", tt.question)
			require.NoError(t, err)

			var got routeOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, "lease.txt", got.Filename)
			assert.Equal(t, string(tt.wantPath), got.Path)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.alternatives, len(got.Alternatives) > 0)
		})
	}
}

func TestRouteCommand_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "route",
		"--config", filepath.Join(dir, "config.yaml"),
		"--file", filepath.Join(dir, "nope.pdf"),
		"--question", "x",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.pdf")
}
