package modules

import (
	"github.com/iota-uz/competency-hub/modules/hrm"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/configuration"
)

// BuiltIn returns the modules every server process loads.
func BuiltIn(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		hrm.NewModule(conf),
	}
}

func Load(app application.Application, modules ...application.Module) error {
	return application.RegisterModules(app, modules...)
}
