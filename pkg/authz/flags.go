package authz

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Mode is the enforcement mode of the gate.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeShadow   Mode = "shadow"
	ModeEnforce  Mode = "enforce"
)

// FlagProvider supplies the current enforcement mode.
type FlagProvider interface {
	Mode() Mode
}

// StaticFlagProvider always reports the same mode.
type StaticFlagProvider Mode

func (s StaticFlagProvider) Mode() Mode {
	return sanitizeMode(Mode(s))
}

type flagFile struct {
	Mode string `yaml:"mode"`
}

// FileFlagProvider reads the mode from a YAML file such as
// config/access/authz_flags.yaml and re-reads it whenever the file changes,
// so the gate can be flipped without a restart. Until the first good read
// the fallback mode applies; afterwards a missing or malformed file keeps
// the last good mode.
type FileFlagProvider struct {
	path     string
	fallback Mode
	logger   *logrus.Entry

	mu      sync.Mutex
	mode    Mode
	modTime time.Time
	size    int64
}

func NewFileFlagProvider(path string, fallback Mode, logger *logrus.Entry) *FileFlagProvider {
	if logger == nil {
		logger = logrus.WithField("component", "authz")
	}
	return &FileFlagProvider{
		path:     path,
		fallback: sanitizeMode(fallback),
		logger:   logger.WithField("flag_file", path),
	}
}

func (p *FileFlagProvider) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		return p.current()
	}
	if p.mode != "" && info.ModTime().Equal(p.modTime) && info.Size() == p.size {
		return p.mode
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p.current()
	}
	var flags flagFile
	if err := yaml.Unmarshal(data, &flags); err != nil {
		p.logger.WithError(err).Warn("ignoring malformed authz flag file")
		return p.current()
	}
	mode := sanitizeMode(Mode(flags.Mode))
	if p.mode != "" && mode != p.mode {
		p.logger.WithFields(logrus.Fields{"from": p.mode, "to": mode}).Info("authz mode changed")
	}
	p.mode, p.modTime, p.size = mode, info.ModTime(), info.Size()
	return mode
}

func (p *FileFlagProvider) current() Mode {
	if p.mode == "" {
		return p.fallback
	}
	return p.mode
}

// sanitizeMode maps unknown values to shadow.
func sanitizeMode(mode Mode) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ModeDisabled:
		return ModeDisabled
	case ModeEnforce:
		return ModeEnforce
	default:
		return ModeShadow
	}
}
