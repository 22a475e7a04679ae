package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "grid", "features", "model", "compare", "report", "run"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootUse(t *testing.T) {
	require.Equal(t, "riskgrid", rootCmd.Use)
}
