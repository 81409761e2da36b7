package authz

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/pkg/configuration"
)

// Config selects the policy source and the enforcement mode source.
type Config struct {
	// PolicyPath points at a casbin policy csv. When empty DefaultPolicy is loaded.
	PolicyPath string
	// FlagPath is the YAML mode file. When empty FlagMode is used as is.
	FlagPath string
	FlagMode Mode
	Logger   *logrus.Logger
	// FlagProvider overrides FlagPath and FlagMode.
	FlagProvider FlagProvider
}

func (c Config) normalized() Config {
	if c.PolicyPath != "" {
		c.PolicyPath = filepath.Clean(c.PolicyPath)
	}
	if c.FlagPath != "" {
		c.FlagPath = filepath.Clean(c.FlagPath)
	}
	c.FlagMode = sanitizeMode(c.FlagMode)
	return c
}

// ConfigFrom reads AUTHZ_MODE, AUTHZ_FLAG_CONFIG and AUTHZ_POLICY_PATH from
// the loaded configuration.
func ConfigFrom(conf *configuration.Configuration) Config {
	return Config{
		PolicyPath: conf.Authz.PolicyPath,
		FlagPath:   conf.Authz.FlagPath,
		FlagMode:   Mode(conf.Authz.Mode),
		Logger:     conf.Logger(),
	}
}
