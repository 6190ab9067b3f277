package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryScope_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryScope()

	got, err := s.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.Equal(t, "", got)

	require.NoError(t, s.Set(ctx, KeyAuthToken, "T"))
	got, err = s.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.Equal(t, "T", got)

	require.NoError(t, s.Delete(ctx, KeyAuthToken))
	got, err = s.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestMemoryScope_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryScope()

	require.NoError(t, s.Set(ctx, KeySessionVerified, "true"))
	require.NoError(t, s.Set(ctx, KeySecurityTokenVerified, "true"))
	require.NoError(t, s.Clear(ctx))

	for _, k := range []string{KeySessionVerified, KeySecurityTokenVerified} {
		got, err := s.Get(ctx, k)
		require.NoError(t, err)
		require.Equal(t, "", got)
	}
}
