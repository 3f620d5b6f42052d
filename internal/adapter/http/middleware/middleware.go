package middleware

import (
	"github.com/Temutjin2k/ride-pooling/pkg/logger"
)

type Middleware struct {
	auth    *TokenVerifier // nil when auth is disabled
	service string
	log     logger.Logger
}

func NewMiddleware(auth *TokenVerifier, service string, log logger.Logger) *Middleware {
	return &Middleware{
		auth:    auth,
		service: service,
		log:     log,
	}
}
