package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecore/internal/config"
)

func defaultConfig() config.Config {
	return config.Config{LogLevel: "info", Format: "text", Parallel: 2}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(defaultConfig())
	require.NotNil(t, cmd)
	assert.Equal(t, "rulecore", cmd.Use)
	assert.Contains(t, cmd.Long, "reactive rule engine")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(defaultConfig())

	for _, cmdName := range []string{"validate", "run", "test", "trace"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(defaultConfig())

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestFlagDefaultsFromConfig(t *testing.T) {
	cfg := config.Config{DBPath: "/tmp/trace.db", LogLevel: "debug", Format: "json", Parallel: 7}
	cmd := NewRootCommand(cfg)

	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.Equal(t, "debug", cmd.PersistentFlags().Lookup("log-level").DefValue)

	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/trace.db", runCmd.Flags().Lookup("db").DefValue)

	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)
	assert.Equal(t, "7", testCmd.Flags().Lookup("parallel").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand(defaultConfig())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--format", "xml", "testdata/rules"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand(defaultConfig())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--log-level", "loud", "testdata/rules"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(buf, &RootOptions{Format: "json", LogLevel: "warn"}).Info("hidden")
	newLogger(buf, &RootOptions{Format: "json", LogLevel: "warn"}).Warn("shown", "run_id", "r1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"run_id":"r1"`)

	buf.Reset()
	newLogger(buf, &RootOptions{Format: "text", LogLevel: "error", Verbose: true}).Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
}
