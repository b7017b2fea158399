package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/wonderland/internal/budget"
	"github.com/user/wonderland/internal/config"
	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/store/sqlite"
	"github.com/user/wonderland/internal/types"
)

const testRoster = `
citizens:
  - seed:
      seed_id: ada
      hexaco:
        honesty_humility: 0.7
        emotionality: 0.5
        extraversion: 0.6
        agreeableness: 0.6
        conscientiousness: 0.7
        openness: 0.8
    owner_id: owner-1
    topics: [debate]
    max_posts_per_hour: 5
  - seed:
      seed_id: bo
    owner_id: owner-1
    topics: [art]
    require_approval: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	newCounter = func(string) (*budget.Counter, error) { return budget.Approximate(), nil }
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:      dir,
		NetworkID:    "serve-test",
		CitizensFile: filepath.Join(dir, "citizens.yaml"),
	}
	cfg.HTTP.Enabled = true
	cfg.Signing.Secret = "test-secret"
	cfg.Schedules = []config.ScheduleConfig{{Name: "browse", Spec: "@every 1h"}}
	require.NoError(t, os.WriteFile(cfg.CitizensFile, []byte(testRoster), 0644))
	cfgPath = filepath.Join(dir, "config.json")
	require.NoError(t, config.Save(cfgPath, cfg))
	return cfg
}

func TestDaemonWiring(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	d, err := newDaemon(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, d.start(ctx))

	require.Len(t, d.net.ListCitizens(), 2)
	require.True(t, d.net.EnclaveSystemInitialized())
	require.Contains(t, d.sched.Entries(), "browse")
	require.Contains(t, d.sched.Entries(), "approvals:expire")
	require.Equal(t, []string{"log", "memory"}, d.sinks.Names())

	_, err = d.net.SubmitTip(ctx, types.Tip{Content: "a debate on proofs", Targets: []string{"ada"}})
	require.NoError(t, err)
	_, err = d.net.SubmitTip(ctx, types.Tip{Content: "paint the sky", Targets: []string{"bo"}})
	require.NoError(t, err)
	require.True(t, d.net.Router().WaitIdle(5*time.Second))

	feed := d.net.Feed(network.FeedOptions{})
	require.Len(t, feed, 1)
	post := feed[0]
	require.Equal(t, "ada", post.SeedID)
	require.NotEmpty(t, post.Manifest.Signature, "manifests are signed with the configured secret")

	notes, err := d.memory.Read("ada")
	require.NoError(t, err)
	require.Contains(t, notes, strings.TrimSpace(strings.ReplaceAll(post.Content, "\n", " ")))

	pending := d.net.ApprovalQueue("owner-1")
	require.Len(t, pending, 1)
	require.NotNil(t, d.net.RejectPost("bo", pending[0].QueueID, "off topic"))
	history, err := d.decisions.Tail(ctx, "bo", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "off topic", history[0].Reason)

	rec := httptest.NewRecorder()
	d.api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	d.close()
	d.close()

	store, err := sqlite.Open(ctx, filepath.Join(cfg.DataDir, "wonderland.db"))
	require.NoError(t, err)
	defer store.Close()
	saved, err := store.GetPost(ctx, post.PostID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, post.Content, saved.Content)

	d2, err := newDaemon(ctx, cfg)
	require.NoError(t, err)
	defer d2.close()
	require.NotNil(t, d2.net.Post(post.PostID), "feed is restored from the store")
}

func TestNewDaemonRejectsBadRoster(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.CitizensFile, []byte("citizens:\n  - owner_id: x\n"), 0644))
	_, err := newDaemon(context.Background(), cfg)
	require.Error(t, err)
}

func TestSignerFromConfig(t *testing.T) {
	cfg := &config.Config{}
	s, err := signerFromConfig(cfg)
	require.NoError(t, err)
	require.Nil(t, s)

	cfg.Signing.Secret = "k"
	s, err = signerFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "HMAC-SHA256", s.Algorithm())

	cfg.Signing.Ed25519Key = "not-hex"
	_, err = signerFromConfig(cfg)
	require.Error(t, err)
}

func TestToolsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	names := func() []string {
		var out []string
		for _, tl := range toolsFromConfig(cfg, nil) {
			out = append(out, tl.Name())
		}
		return out
	}
	require.Equal(t, []string{"memory_read"}, names())
	cfg.Serp.APIKey = "s"
	cfg.Giphy.APIKey = "g"
	cfg.Brave.APIKey = "b"
	require.Equal(t, []string{"memory_read", "web_search", "news_search", "giphy_search"}, names())
	require.Nil(t, providerFromConfig(&config.Config{}))
}

func TestDaemonReload(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	d, err := newDaemon(ctx, cfg)
	require.NoError(t, err)
	defer d.close()
	require.NoError(t, d.start(ctx))
	require.NotNil(t, d.watcher)
	require.NoError(t, d.watcher.Close())

	require.NoError(t, config.SetValue(cfgPath, "schedules", `[{"name":"digest","spec":"@every 2h"}]`))
	d.reload(ctx, cfgPath)
	require.Contains(t, d.sched.Entries(), "digest")
	require.NotContains(t, d.sched.Entries(), "browse")

	roster := testRoster + `  - seed:
      seed_id: cy
    owner_id: owner-2
    topics: [debate]
`
	require.NoError(t, os.WriteFile(cfg.CitizensFile, []byte(roster), 0644))
	d.reload(ctx, cfg.CitizensFile)
	require.NotNil(t, d.net.Citizen("cy"))
	require.Equal(t, []string{"arena"}, d.net.Enclaves().Subscriptions("cy"))
	require.Len(t, d.net.ListCitizens(), 3)

	require.NoError(t, os.WriteFile(cfg.CitizensFile, []byte("citizens: ["), 0644))
	d.reload(ctx, cfg.CitizensFile)
	require.Len(t, d.net.ListCitizens(), 3, "a broken roster leaves citizens untouched")
}
