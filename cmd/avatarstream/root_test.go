package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_DefaultLogLevelShowsInfo(t *testing.T) {
	flag := RootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)

	lvl, err := zerolog.ParseLevel(flag.DefValue)
	require.NoError(t, err)
	assert.LessOrEqual(t, lvl, zerolog.InfoLevel)
}
