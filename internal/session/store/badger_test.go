package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/platform/config"
	"minerva/internal/platform/logger"
	"minerva/pkg/platform/sentinel"
)

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := OpenBadger(dir, WithBadgerPrefix("alice/"), WithBadgerLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, KeyKycToken, "kyc-token"))
	require.NoError(t, first.Close())

	second, err := OpenBadger(dir, WithBadgerPrefix("alice/"), WithBadgerLogger(logger.Discard()))
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, KeyKycToken)
	require.NoError(t, err)
	assert.Equal(t, "kyc-token", got)

	keys, err := second.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyKycToken}, keys)
}

func TestBadgerStoreClosed(t *testing.T) {
	s, err := OpenBadger("", WithBadgerInMemory(), WithBadgerLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), KeyKycToken)
	assert.ErrorIs(t, err, sentinel.ErrClosed)
}

func TestIsAdapterKey(t *testing.T) {
	for _, k := range []string{"walletName", "walletAdapter", "wagmi.store", "wagmi.connected", "phantom.pref", "metamask-state", "solana:last", "ethereum.chain", "connector.id", "AuthState", "minerva_wallet_cancelled"} {
		assert.True(t, IsAdapterKey(k), k)
	}
	for _, k := range []string{"theme", "minerva_kyc_token", "locale"} {
		assert.False(t, IsAdapterKey(k), k)
	}
}

func TestOpenFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = config.StoreMemory
		st, closer, err := Open(ctx, cfg, logger.Discard())
		require.NoError(t, err)
		require.NoError(t, closer.Close())
		assert.IsType(t, &InMemoryStore{}, st)
	})

	t.Run("badger", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Dir = t.TempDir()
		st, closer, err := Open(ctx, cfg, logger.Discard())
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &BadgerStore{}, st)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = "etcd"
		_, _, err := Open(ctx, cfg, logger.Discard())
		require.Error(t, err)
	})
}
