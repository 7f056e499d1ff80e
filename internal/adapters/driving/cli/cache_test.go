package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

func TestCacheCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["stats"])
	assert.True(t, names["clear"])
	assert.True(t, names["invalidate"])
}

func cacheStats(t *testing.T) domain.CacheStats {
	t.Helper()
	out, err := execute(t, "--json", "cache", "stats")
	require.NoError(t, err)

	var stats domain.CacheStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	return stats
}

func TestCacheStatsCmd(t *testing.T) {
	setupSearchEngine(t)

	_, err := execute(t, "search", "-i", "places", "thames")
	require.NoError(t, err)
	_, err = execute(t, "search", "-i", "places", "thames")
	require.NoError(t, err)

	stats := cacheStats(t)
	assert.True(t, stats.Enabled)
	assert.Equal(t, 1, stats.Entries)
	assert.EqualValues(t, 1, stats.Hits)

	out, err := execute(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Query Cache")
	assert.Contains(t, out, "Entries:     1")
}

func TestCacheClearCmd(t *testing.T) {
	setupSearchEngine(t)
	_, err := execute(t, "search", "-i", "places", "thames")
	require.NoError(t, err)

	out, err := execute(t, "cache", "clear")

	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 cached results")
	assert.Zero(t, cacheStats(t).Entries)
}

func TestCacheInvalidateCmd(t *testing.T) {
	setupSearchEngine(t)
	_, err := execute(t, "search", "-i", "places", "thames")
	require.NoError(t, err)
	_, err = execute(t, "search", "-i", "places", "tower")
	require.NoError(t, err)

	out, err := execute(t, "cache", "invalidate", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 cached results for other")

	out, err = execute(t, "cache", "invalidate", "places")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 cached results for places")
}

func TestCacheSearchBypass(t *testing.T) {
	setupSearchEngine(t)

	_, err := execute(t, "search", "-i", "places", "--no-cache", "thames")
	require.NoError(t, err)

	assert.Zero(t, cacheStats(t).Entries)
}
