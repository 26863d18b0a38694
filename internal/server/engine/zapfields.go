package engine

import "go.uber.org/zap"

const (
	clientField  = "client-id"
	sessionField = "session-id"
)

func ClientField(id string) zap.Field {
	return zap.String(clientField, id)
}

func SessionField(id string) zap.Field {
	return zap.String(sessionField, id)
}
