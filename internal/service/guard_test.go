package service

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestMembershipKeysDoNotCollide(t *testing.T) {
	a, b := membershipKey("a|b", "c"), membershipKey("a", "b|c")
	assert.NotEqual(t, a, b)

	guard := NewLocalGuard()
	ctx := context.Background()
	releaseA, ok, _ := guard.TryAcquire(ctx, a)
	assert.Equal(t, ok, true)
	defer releaseA()

	releaseB, ok, _ := guard.TryAcquire(ctx, b)
	assert.Equal(t, ok, true)
	releaseB()

	_, ok, _ = guard.TryAcquire(ctx, a)
	assert.Equal(t, ok, false)
}
