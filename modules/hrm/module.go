package hrm

import (
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/competency-hub/modules/hrm/infrastructure/directory"
	"github.com/iota-uz/competency-hub/modules/hrm/presentation/controllers"
	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/authz"
	"github.com/iota-uz/competency-hub/pkg/configuration"
	"github.com/iota-uz/competency-hub/pkg/middleware"
)

func NewModule(conf *configuration.Configuration) application.Module {
	return &Module{conf: conf}
}

type Module struct {
	conf *configuration.Configuration
}

func (m *Module) Register(app application.Application) error {
	client, err := NewDirectoryClient(m.conf)
	if err != nil {
		return err
	}
	source := NewScopeSource(m.conf, client)

	az, err := authz.NewService(authz.ConfigFrom(m.conf))
	if err != nil {
		return errors.Wrap(err, "authz")
	}
	strategy, err := services.ParseEditLoadStrategy(m.conf.EditLoadStrategy)
	if err != nil {
		return err
	}

	rc := m.conf.RoleScope()
	sessions := services.NewFormSessions(services.EmployeeFormOptions{
		Directory: source,
		API:       client,
		RoleScope: rc,
		Strategy:  strategy,
		Authz:     az,
		Events:    app.EventPublisher(),
		Logger:    app.Logger(),
	}, services.WithIdleTTL(m.conf.FormSessions.TTL))
	if m.conf.FormSessions.TTL > 0 {
		go sessions.Run(app.Context(), m.conf.FormSessions.SweepInterval)
	}
	app.RegisterServices(az, sessions)
	app.RegisterMiddleware(middleware.ProvideRoleScope(rc))
	app.RegisterControllers(
		controllers.NewEmployeeFormController(app),
		controllers.NewImportTemplateController(app, source),
	)
	return nil
}

func (m *Module) Name() string {
	return "hrm"
}

// NewDirectoryClient builds the remote HR API client from configuration.
func NewDirectoryClient(conf *configuration.Configuration) (*directory.Client, error) {
	client, err := directory.NewClient(directory.ClientOptions{
		BaseURL:         conf.ScopeAPI.BaseURL,
		Token:           conf.ScopeAPI.Token,
		Timeout:         conf.ScopeAPI.Timeout,
		RequestIDHeader: conf.RequestIDHeader,
	})
	if err != nil {
		return nil, errors.Wrap(err, "directory client")
	}
	return client, nil
}

// NewScopeSource wraps client in the configured option cache.
func NewScopeSource(conf *configuration.Configuration, client *directory.Client) directory.Source {
	var store directory.Store
	switch conf.Cache.Backend {
	case "memory":
		store = directory.NewMemoryStore()
	case "redis":
		store = directory.NewRedisStore(redis.NewClient(&redis.Options{Addr: conf.Cache.RedisURL}))
	default:
		return client
	}
	return directory.NewCachedDirectory(client, store, conf.Cache.TTL, conf.Logger())
}
