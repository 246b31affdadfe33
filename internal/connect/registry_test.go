package connect

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	token, err := store.Register(ctx, "postgres://u:p@localhost:5432/db?sslmode=disable")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	dsn, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Contains(t, dsn, "localhost:5432")

	require.NoError(t, store.Remove(ctx, token))
	_, err = store.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestMemoryStore_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := store.Register(ctx, "postgres://u:p@h/db")
		require.NoError(t, err)
		require.False(t, seen[token], "token issued twice")
		seen[token] = true
	}
}

func TestMemoryStore_UnknownToken(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownToken)

	// removing an unknown token is a no-op
	assert.NoError(t, store.Remove(context.Background(), "nope"))
}

func TestRedisStore_RegisterSetsPrefixedKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour)

	mock.Regexp().ExpectSet(`driftwatch:conn:.+`, `.+`, time.Hour).SetVal("OK")

	token, err := store.Register(context.Background(), "postgres://u:p@h/db")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ResolveAndRemove(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, 0)

	mock.ExpectGet("driftwatch:conn:tok-1").SetVal("postgres://u:p@h/db")
	dsn, err := store.Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/db", dsn)

	mock.ExpectDel("driftwatch:conn:tok-1").SetVal(1)
	require.NoError(t, store.Remove(context.Background(), "tok-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MissingKeyIsUnknownToken(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, 0)

	mock.ExpectGet("driftwatch:conn:gone").RedisNil()
	_, err := store.Resolve(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestNewStore_Selection(t *testing.T) {
	assert.IsType(t, &MemoryStore{}, NewStore("", 0))
	assert.IsType(t, &RedisStore{}, NewStore("localhost:6379", time.Minute))
}

func TestCredentials_DSN(t *testing.T) {
	creds := Credentials{
		Host:     "db.internal",
		Port:     5433,
		Username: "svc",
		Password: "p@ss/word",
		Database: "metrics",
		SSLMode:  "require",
	}
	dsn := creds.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5433")
	assert.Contains(t, dsn, "/metrics")
	assert.Contains(t, dsn, "sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word", "password must be URL-escaped")
}

func TestCredentials_DSNDefaults(t *testing.T) {
	dsn := Credentials{Host: "localhost", Username: "u", Password: "p", Database: "db"}.DSN()
	assert.Contains(t, dsn, "localhost:5432")
	assert.Contains(t, dsn, "sslmode=disable")
}
