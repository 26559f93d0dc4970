package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RoundTripAndPrefixDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	var out map[string]int
	found, err := GetCache(ctx, rdb, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetCache(ctx, rdb, "txhistory:user:1:page:1:size:20", map[string]int{"total": 3}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "txhistory:user:1:page:2:size:50", map[string]int{"total": 3}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "txhistory:user:2:page:1:size:20", map[string]int{"total": 1}, time.Minute))

	found, err = GetCache(ctx, rdb, "txhistory:user:1:page:1:size:20", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, out["total"])

	require.NoError(t, DeleteCachePrefix(ctx, rdb, "txhistory:user:1:"))
	assert.False(t, mr.Exists("txhistory:user:1:page:1:size:20"))
	assert.False(t, mr.Exists("txhistory:user:1:page:2:size:50"))
	assert.True(t, mr.Exists("txhistory:user:2:page:1:size:20"))
}
