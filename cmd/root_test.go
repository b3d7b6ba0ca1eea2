package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/lguibr/luactor/script"
	"github.com/lguibr/luactor/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run("version")
	require.NoError(t, err)
	assert.Equal(t, "luactor "+script.Version+"\n", out)
}

func TestServe_MissingScriptFails(t *testing.T) {
	_, err := run("serve", "--handle", filepath.Join(t.TempDir(), "missing.lua"))
	assert.ErrorContains(t, err, "handle script")
}

func TestServe_BrokenScriptFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handle.lua")
	require.NoError(t, os.WriteFile(path, []byte("return 1 +"), 0o644))

	_, err := run("serve", "--handle", path)
	var loadErr *script.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestRepl_RequiresHandle(t *testing.T) {
	_, err := run("repl")
	assert.ErrorContains(t, err, "--handle")
}

func TestPhaseFlags_LoadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "luactor.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"listenAddr": ":9999"}`), 0o644))

	f := phaseFlags{config: cfgPath}
	cfg, err := f.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)

	cfg, err = (&phaseFlags{}).loadConfig()
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultConfig(), cfg)
}
