package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "pipeline.hcl", cfg.DeclFile)
	assert.Equal(t, "100%", cfg.DefaultClass)
	assert.Contains(t, cfg.ExcludePrefixes, "#")
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("PIPEFORGE_TEST_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "pipeforge.yaml")
	body := `
decl_file: stage.hcl
default_jobs: 2
classes:
  cpu: 4
  io: 16
log:
  level: ${PIPEFORGE_TEST_LEVEL}
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stage.hcl", cfg.DeclFile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Jobs("cpu"))
	assert.Equal(t, 16, cfg.Jobs("io"))
	assert.Equal(t, 2, cfg.Jobs("unconfigured"))
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "bad log level", body: "log:\n  level: loud\n  format: text\n"},
		{name: "bad log format", body: "log:\n  level: info\n  format: xml\n"},
		{name: "zero class ceiling", body: "classes:\n  cpu: 0\n"},
		{name: "empty decl file", body: "decl_file: \"\"\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pipeforge.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestJobs_FallsBackToCPUCount(t *testing.T) {
	cfg := Default()
	assert.Greater(t, cfg.Jobs("anything"), 0)
}
