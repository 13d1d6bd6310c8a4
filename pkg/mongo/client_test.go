package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/keygate/pkg/mongo"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := mongo.New(context.Background(), mongo.Config{})
		assert.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()
		_, err := mongo.New(context.Background(), mongo.Config{
			ConnectionURL: "not-a-mongo-url",
			RetryAttempts: 1,
			RetryInterval: time.Millisecond,
		})
		assert.ErrorIs(t, err, mongo.ErrFailedToConnectToMongo)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := mongo.New(ctx, mongo.Config{
			ConnectionURL:  "mongodb://127.0.0.1:1",
			ConnectTimeout: 50 * time.Millisecond,
			RetryAttempts:  3,
			RetryInterval:  time.Hour,
		})
		assert.ErrorIs(t, err, mongo.ErrFailedToConnectToMongo)
	})
}
