package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantTool string
		wantArgs []string
	}{
		{"subcommand", []string{"commits", "--worktree", "lib"}, "bench-commits", []string{"--worktree", "lib"}},
		{"alias", []string{"run", "-y"}, "bench-commits", []string{"-y"}},
		{"help", []string{"help", "query"}, "bench-query", []string{"--help"}},
		{"help alias", []string{"help", "q", "ignored"}, "bench-query", []string{"--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, args, err := resolve(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTool, tool)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	_, _, err := resolve(nil)
	assert.ErrorIs(t, err, errUsage)

	_, _, err = resolve([]string{"help"})
	assert.ErrorIs(t, err, errUsage)

	_, _, err = resolve([]string{"scenario"})
	assert.ErrorContains(t, err, "unknown command 'scenario'")
}

func TestDoctor(t *testing.T) {
	t.Setenv("COMMITBENCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("COMMITBENCH_STORE_URL", "mem://")

	t.Run("everything installed", func(t *testing.T) {
		var out bytes.Buffer
		lookPath := func(name string) (string, error) { return "/usr/bin/" + name, nil }

		assert.Equal(t, 0, doctor(&out, lookPath))
		assert.Contains(t, out.String(), "/usr/bin/bench-commits")
		assert.Contains(t, out.String(), "/usr/bin/python")
		assert.NotContains(t, out.String(), "✗")
	})

	t.Run("missing tools", func(t *testing.T) {
		var out bytes.Buffer
		lookPath := func(name string) (string, error) {
			if name == "git" {
				return "/usr/bin/git", nil
			}
			return "", errors.New("not found")
		}

		assert.Equal(t, 1, doctor(&out, lookPath))
		assert.Contains(t, out.String(), "bench-import")
		assert.Contains(t, out.String(), "5 problem(s) found")
	})
}
