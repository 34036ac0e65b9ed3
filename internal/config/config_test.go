package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tensegrity/internal/impedance"
	"tensegrity/internal/structure"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "sim.yaml", `
robot: spine
segments: 4
dt: 0.002
ticks: 800
world:
  gravity: 98.1
control:
  drive_roles: [active]
tuning:
  attempts: 5
  selection: dynamic_random
store:
  kind: sqlite
  path: /tmp/tensegrity.db
log:
  level: debug
metrics:
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "spine", cfg.Robot)
	require.Equal(t, 4, cfg.Segments)
	require.Equal(t, 0.002, cfg.Dt)
	require.Equal(t, 98.1, cfg.World.Gravity)
	require.True(t, cfg.World.Ground, "unset fields keep their defaults")
	require.Equal(t, Default().World.Iterations, cfg.World.Iterations)
	require.Equal(t, 5, cfg.Tuning.Attempts)
	require.Equal(t, Default().Tuning.Steps, cfg.Tuning.Steps)
	require.Equal(t, "sqlite", cfg.Store.Kind)
	require.Equal(t, ":9090", cfg.Metrics.Addr)

	cpg := cfg.CPGConfig()
	require.Equal(t, []structure.Role{structure.RoleActive}, cpg.DriveRoles)
	require.Equal(t, 98.1, cfg.PhysicsConfig().Gravity)
	require.Equal(t, "dynamic_random", cfg.HillClimber().CandidateSelection)
}

func TestLoadJSONByExtension(t *testing.T) {
	path := writeFile(t, "sim.json", `{"robot": "prism", "ticks": 10, "world": {"ground": false}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prism", cfg.Robot)
	require.Equal(t, 10, cfg.Ticks)
	require.False(t, cfg.World.Ground)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero dt":         "dt: 0\n",
		"negative ticks":  "ticks: -1\n",
		"empty robot":     "robot: \"\"\n",
		"bad friction":    "world:\n  friction: 2\n",
		"bad role":        "control:\n  drive_roles: [sideways]\n",
		"bad store":       "store:\n  kind: redis\n",
		"sqlite no path":  "store:\n  kind: sqlite\n",
		"bad level":       "log:\n  level: loud\n",
		"bad metrics":     "metrics:\n  addr: nope\n",
		"zero tune steps": "tuning:\n  steps: 0\n",
		"bad mode":        "control:\n  mode: torque\n",
		"negative offset": "control:\n  tension_offset: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "sim.yaml", body))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMalformedAndMissing(t *testing.T) {
	_, err := Load(writeFile(t, "sim.yaml", "robot: [unterminated\n"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestGroupModeParsesControlMode(t *testing.T) {
	mode, err := Default().GroupMode()
	require.NoError(t, err)
	require.Equal(t, impedance.ModeRestLength, mode)

	path := writeFile(t, "sim.yaml", "structure: prism.yaml\ncontrol:\n  mode: tension\n  tension_offset: 2.5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prism.yaml", cfg.Structure)
	require.Equal(t, 2.5, cfg.Control.TensionOffset)
	mode, err = cfg.GroupMode()
	require.NoError(t, err)
	require.Equal(t, impedance.ModeTension, mode)

	cfg.Control.Mode = "torque"
	_, err = cfg.GroupMode()
	require.ErrorIs(t, err, ErrInvalidConfig)
}
