package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "modreg", cmd.Use)
	assert.Contains(t, cmd.Long, "manifest")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"list", "status", "enable", "disable", "install",
		"uninstall", "settings", "sync", "clear-cache", "serve",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	t.Setenv("MODREG_DB_PATH", "/var/lib/modreg/registry.db")
	t.Setenv("MODREG_MANIFEST", "/etc/modreg/modules.toml")
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "/var/lib/modreg/registry.db", dbFlag.DefValue)

	manifestFlag := cmd.PersistentFlags().Lookup("manifest")
	require.NotNil(t, manifestFlag)
	assert.Equal(t, "/etc/modreg/modules.toml", manifestFlag.DefValue)
}

func TestInstallCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	installCmd, _, err := cmd.Find([]string{"install"})
	require.NoError(t, err)

	for _, name := range []string{
		"name", "description", "integration", "module-version",
		"author", "core", "settings", "depends-on", "sort-order",
	} {
		assert.NotNil(t, installCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestUninstallCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	uninstallCmd, _, err := cmd.Find([]string{"uninstall"})
	require.NoError(t, err)

	yesFlag := uninstallCmd.Flags().Lookup("yes")
	require.NotNil(t, yesFlag)
	assert.Equal(t, "y", yesFlag.Shorthand)
}
