package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.Addr())
}

func TestComputeSHA1(t *testing.T) {
	// Redis computes the same digest for SCRIPT LOAD
	assert.Equal(t, "e0e1f9fabfc9d4800c877a703b823ac0578ff8db", computeSHA1("return 1"))
}

func TestIsNoScriptError(t *testing.T) {
	assert.True(t, isNoScriptError(errors.New("NOSCRIPT No matching script. Please use EVAL.")))
	assert.False(t, isNoScriptError(errors.New("ERR unknown command")))
	assert.False(t, isNoScriptError(nil))
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{
		Host:          "127.0.0.1",
		Port:          1,
		DialTimeout:   100 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestEvalWithFallback_Integration(t *testing.T) {
	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("TEST_REDIS_HOST not set")
	}
	cfg := DefaultConfig()
	cfg.Host = host

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	res, err := client.EvalWithFallback(ctx, "echo", "return ARGV[1]", nil, "hello").Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", res)

	// cached path
	res, err = client.EvalWithFallback(ctx, "echo", "return ARGV[1]", nil, "again").Text()
	require.NoError(t, err)
	assert.Equal(t, "again", res)
}
