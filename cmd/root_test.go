package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "render", "inspect"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "response-map", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRenderCommand_Flags(t *testing.T) {
	for _, name := range []string{
		"data", "boundaries", "mapping", "lat", "lon", "neighborhood", "date",
		"category", "name-field", "from", "to", "no-legend", "out", "png", "records",
	} {
		assert.NotNil(t, renderCmd.Flags().Lookup(name), "render should have --%s flag", name)
	}
	assert.Equal(t, "map.html", renderCmd.Flags().Lookup("out").DefValue)
}

func TestInspectCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "boundaries"} {
		assert.NotNil(t, inspectCmd.Flags().Lookup(name), "inspect should have --%s flag", name)
	}
}
