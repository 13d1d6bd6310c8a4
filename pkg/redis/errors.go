package redis

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redis: REDIS_URL is empty")
	ErrInvalidURL         = errors.New("redis: invalid connection url")
	ErrNotReady           = errors.New("redis: server did not answer in time")
	ErrHealthcheckFailed  = errors.New("redis: healthcheck failed")
)
