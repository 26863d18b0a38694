package server

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"go.uber.org/zap"
)

const (
	credentialField = "credential-hashed"
	remoteField     = "remote-address"
	requestIDField  = "request-id"
)

func HashedCredentialField(secret string) zap.Field {
	return zap.String(credentialField, credential.Fingerprint(secret))
}

func RemoteField(address string) zap.Field {
	return zap.String(remoteField, address)
}

func RequestIDField(requestID string) zap.Field {
	return zap.String(requestIDField, requestID)
}
