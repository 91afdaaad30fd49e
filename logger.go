package fin

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger allows setting a custom logger
func SetLogger(l *zap.Logger) {
	logger = l
}
