package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/service"
	"gitlab.com/henri.philipps/diffdetect/storage/memory"
	"golang.org/x/exp/slog"
)

const seedYAML = `
intervals:
  - name: hourly
    period: 1h
  - name: daily
    period: 24h
resources:
  - name: Example
    url: http://site.example/page
    interval: daily
  - url: http://site.example/feed.xml
    type: RSS
    enabled: false
    http_auth_login: user
    http_auth_password: secret
`

func TestParse(t *testing.T) {
	seed, err := Parse(strings.NewReader(seedYAML))
	require.NoError(t, err)

	require.Len(t, seed.Intervals, 2)
	assert.Equal(t, 24*time.Hour, seed.Intervals[1].Period)

	require.Len(t, seed.Resources, 2)
	assert.Equal(t, "daily", seed.Resources[0].Interval)
	assert.Nil(t, seed.Resources[0].Enabled)
	require.NotNil(t, seed.Resources[1].Enabled)
	assert.False(t, *seed.Resources[1].Enabled)
}

func TestParse_Empty(t *testing.T) {
	seed, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Resources)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "resources:\n  - url: http://x.example\n    every: 1h\n",
		"unknown type":     "resources:\n  - url: http://x.example\n    type: atom\n",
		"invalid url":      "resources:\n  - url: x.example\n",
		"missing period":   "intervals:\n  - name: often\n",
		"duplicate name":   "intervals:\n  - name: a\n    period: 1m\n  - name: a\n    period: 2m\n",
		"malformed period": "intervals:\n  - name: a\n    period: soon\n",
		"interval unnamed": "intervals:\n  - period: 1m\n",
	}

	for name, doc := range tests {
		_, err := Parse(strings.NewReader(doc))
		assert.ErrorIs(t, err, diffdetect.ErrConfig, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, seed.Resources, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewResources(memory.New(logger), logger)

	seed, err := Parse(strings.NewReader(seedYAML))
	require.NoError(t, err)

	stats, err := seed.Apply(ctx, svc, logger)
	require.NoError(t, err)
	assert.Equal(t, Stats{Intervals: 2, Resources: 2}, stats)

	resources, err := svc.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 2)

	intervals, err := svc.ListIntervals(ctx)
	require.NoError(t, err)

	var daily int64
	for _, iv := range intervals {
		if iv.Name == "daily" {
			daily = iv.ID
		}
	}

	byURL := map[string]*diffdetect.Resource{}
	for _, r := range resources {
		byURL[r.URL] = r
	}

	page := byURL["http://site.example/page"]
	require.NotNil(t, page)
	assert.True(t, page.Enabled)
	assert.Equal(t, daily, page.IntervalID)
	assert.Equal(t, diffdetect.TypeGeneric, page.Type)

	feed := byURL["http://site.example/feed.xml"]
	require.NotNil(t, feed)
	assert.False(t, feed.Enabled)
	assert.Equal(t, diffdetect.TypeRSS, feed.Type)
	assert.Equal(t, "secret", feed.HTTPAuthPassword)

	// applying again creates nothing
	stats, err = seed.Apply(ctx, svc, logger)
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 4}, stats)
}

func TestApply_UnknownInterval(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewResources(memory.New(logger), logger)

	seed, err := Parse(strings.NewReader("resources:\n  - url: http://x.example\n    interval: weekly\n"))
	require.NoError(t, err)

	_, err = seed.Apply(ctx, svc, logger)
	assert.ErrorIs(t, err, diffdetect.ErrConfig)
}
