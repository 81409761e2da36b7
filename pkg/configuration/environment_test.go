package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "COMPETENCY_HUB_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "crud")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	_ = os.Unsetenv("COMPETENCY_HUB_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("COMPETENCY_HUB_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("COMPETENCY_HUB_TEST_ENV_LOAD"))
}

func TestLoad_ActingScope(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACTING_ROLE", "project_manager")
	t.Setenv("SCOPE_SEGMENT_ID", "3")
	t.Setenv("SCOPE_SUB_SEGMENT_ID", "7")
	t.Setenv("SCOPE_PROJECT_ID", "15")

	c, err := Load()
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	rc := c.RoleScope()
	require.Equal(t, rolescope.RoleProjectManager, rc.Role)
	require.Equal(t, int64(15), *rc.ScopeValue(2))
	require.Nil(t, rc.ScopeValue(3))
	require.Equal(t, "bootstrap", c.EditLoadStrategy)
	require.NotNil(t, c.Logger())
	require.Equal(t, []string{"http://localhost:3000"}, c.CORS.AllowedOrigins)
	require.False(t, c.RateLimit.Enabled)
	require.Equal(t, 30*time.Minute, c.FormSessions.TTL)
	require.Equal(t, time.Minute, c.FormSessions.SweepInterval)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string][2]string{
		"unknown role":         {"ACTING_ROLE", "OWNER"},
		"bad cache backend":    {"SCOPE_CACHE_BACKEND", "disk"},
		"bad strategy":         {"HRM_EDIT_LOAD_STRATEGY", "parallel"},
		"bad base url":         {"SCOPE_API_BASE_URL", "not a url"},
		"non-positive ttl":     {"SCOPE_CACHE_TTL", "0s"},
		"non-numeric scope":    {"SCOPE_TEAM_ID", "abc"},
		"negative timeout":     {"SCOPE_API_TIMEOUT", "-1s"},
		"negative rate limit":  {"RATE_LIMIT_GLOBAL_RPS", "-5"},
		"bad limiter storage":  {"RATE_LIMIT_STORAGE", "disk"},
		"negative session ttl": {"HRM_FORM_SESSION_TTL", "-1m"},
		"zero sweep interval":  {"HRM_FORM_SESSION_SWEEP_INTERVAL", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
