package oauthstate

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	s := NewRedisStore(client)
	ctx := context.Background()

	err := s.Save(ctx, "n", State{UserID: "u1"}, TTL)
	assert.ErrorContains(t, err, "failed to save oauth state")

	_, err = s.Consume(ctx, "n")
	assert.ErrorContains(t, err, "failed to read oauth state")
	assert.NotErrorIs(t, err, ErrInvalidState)
}
