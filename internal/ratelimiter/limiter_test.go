package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/ratelimiter"
)

func TestKindLimiters_BurstThenBlock(t *testing.T) {
	l := ratelimiter.New(2)

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, domain.KindEventReminder))
	require.NoError(t, l.Wait(ctx, domain.KindEventReminder))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, domain.KindEventReminder), "third token within the second must wait")
}

func TestKindLimiters_KindsAreIndependent(t *testing.T) {
	l := ratelimiter.New(1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, domain.KindEventReminder))
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Wait(short, domain.KindEmailVerification))
}
