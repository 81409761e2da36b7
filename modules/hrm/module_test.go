package hrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/competency-hub/modules/hrm/infrastructure/directory"
	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/configuration"
)

func testConfig(backend string) *configuration.Configuration {
	conf := &configuration.Configuration{
		EditLoadStrategy: "sequential",
		RequestIDHeader:  "X-Request-ID",
	}
	conf.ScopeAPI.BaseURL = "http://scope.test"
	conf.ScopeAPI.Timeout = time.Second
	conf.Cache.Backend = backend
	conf.Cache.TTL = time.Minute
	conf.Cache.RedisURL = "localhost:6379"
	conf.ActingScope.Role = "PROJECT_MANAGER"
	conf.Authz.Mode = "enforce"
	conf.FormSessions.TTL = time.Minute
	conf.FormSessions.SweepInterval = time.Second
	return conf
}

func TestNewScopeSource(t *testing.T) {
	client, err := NewDirectoryClient(testConfig("off"))
	require.NoError(t, err)

	assert.Same(t, client, NewScopeSource(testConfig("off"), client))
	assert.IsType(t, &directory.CachedDirectory{}, NewScopeSource(testConfig("memory"), client))
	assert.IsType(t, &directory.CachedDirectory{}, NewScopeSource(testConfig("redis"), client))
}

func TestModuleRegister(t *testing.T) {
	app := application.New(&application.ApplicationOptions{Context: t.Context()})

	require.NoError(t, application.RegisterModules(app, NewModule(testConfig("memory"))))

	keys := make([]string, 0, len(app.Controllers()))
	for _, c := range app.Controllers() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"/hrm/api/employee-forms", "/hrm/api/import-template"}, keys)
	assert.Len(t, app.Middleware(), 1)

	sessions := app.Service(services.FormSessions{}).(*services.FormSessions)
	assert.Equal(t, "PROJECT_MANAGER", sessions.DefaultRoleScope().Role.String())
	assert.NotNil(t, sessions.Authorizer())
}

func TestModuleRegister_InvalidBaseURL(t *testing.T) {
	conf := testConfig("off")
	conf.ScopeAPI.BaseURL = "not a url"
	app := application.New(&application.ApplicationOptions{})
	require.Error(t, NewModule(conf).Register(app))
}

func TestModuleRegister_SessionSweeperStopsWithApp(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(upstream.Close)
	conf := testConfig("off")
	conf.ScopeAPI.BaseURL = upstream.URL

	ctx, cancel := context.WithCancel(context.Background())
	app := application.New(&application.ApplicationOptions{Context: ctx})
	require.NoError(t, NewModule(conf).Register(app))
	sessions := app.Service(services.FormSessions{}).(*services.FormSessions)

	_, form, err := sessions.Open(context.Background(), sessions.DefaultRoleScope(), nil)
	require.NoError(t, err)
	form.Resolver().Wait()
	require.Equal(t, 1, sessions.Len())

	cancel()
	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, 5*time.Millisecond)
}
