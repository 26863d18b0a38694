package host

import (
	"go.uber.org/zap"
)

type Option func(*PTYHost)

func WithLogger(logger *zap.Logger) Option {
	return func(ph *PTYHost) {
		ph.logger = logger
	}
}

func WithShellEnv(shellEnv []string) Option {
	return func(ph *PTYHost) {
		ph.shellEnv = shellEnv
	}
}

func WithShellPath(shellPath string) Option {
	return func(ph *PTYHost) {
		ph.shellPath = shellPath
	}
}
