package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

type (
	loggerKey    struct{}
	requestIDKey struct{}
)

// WithLogger stores a request-scoped logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// UseLogger returns the request logger, or an entry of the standard logger
// when none was stored.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func UseRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// UseRoleScope returns the acting role and scope attached to the request.
func UseRoleScope(ctx context.Context) (rolescope.Context, bool) {
	return rolescope.FromContext(ctx)
}
