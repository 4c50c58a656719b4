package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/sequencer"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"confirmation denied", &ConfirmationDeniedError{}, 0},
		{"wrapped confirmation denied", fmt.Errorf("cleanup: %w", &ConfirmationDeniedError{}), 0},
		{"partial", &PartialError{Reason: "2 step(s) skipped"}, 1},
		{"partial with cause", &PartialError{Reason: "cleanup incomplete", Err: errors.New("boom")}, 1},
		{"provider failure", &sequencer.ProviderError{Step: "vpc", Op: "create", Cause: errors.New("denied")}, 2},
		{"missing dependency", &state.MissingDependencyError{Role: "vpc"}, 2},
		{"corrupt state", fmt.Errorf("load: %w", state.ErrCorrupt), 2},
		{"plain error", errors.New("boom"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestPartialErrorMessage(t *testing.T) {
	e := &PartialError{Reason: "cleanup incomplete", Err: errors.New("2 step(s) failed")}
	assert.Equal(t, "cleanup incomplete: 2 step(s) failed", e.Error())
	assert.EqualError(t, errors.Unwrap(e), "2 step(s) failed")

	assert.Equal(t, "3 step(s) skipped", (&PartialError{Reason: "3 step(s) skipped"}).Error())
}

func TestRootHasAllSubcommands(t *testing.T) {
	want := []string{
		"setup-network",
		"create-endpoint",
		"deploy-test-instances",
		"run-connectivity-tests",
		"cleanup",
		"status",
		"version",
	}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestOpenBackendSelectsLocal(t *testing.T) {
	cfg := &config.Config{StatePath: filepath.Join(t.TempDir(), "state.json")}
	cfg.Backend.Type = "local"

	backend, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &state.FileBackend{}, backend)
}

func TestCleanupRequiresConfirmationFlag(t *testing.T) {
	flag := cleanupCmd.Flags().Lookup("yes")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
