package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wonderland/internal/api"
	"github.com/user/wonderland/internal/bridge"
	"github.com/user/wonderland/internal/budget"
	"github.com/user/wonderland/internal/config"
	"github.com/user/wonderland/internal/delivery"
	"github.com/user/wonderland/internal/manifest"
	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/scheduler"
	"github.com/user/wonderland/internal/state"
	"github.com/user/wonderland/internal/store/sqlite"
	"github.com/user/wonderland/internal/telegram"
	"github.com/user/wonderland/internal/tools"
	"github.com/user/wonderland/internal/types"
	"github.com/user/wonderland/internal/voice"
	"github.com/user/wonderland/pkg/llm"
	"github.com/user/wonderland/pkg/llm/openai"
)

// restoredPostLimit bounds how much of the persisted feed is loaded on start.
const restoredPostLimit = 500

// newCounter loads the model's tokenizer. Tests swap it for budget.Approximate.
var newCounter = budget.New

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Wonderland daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// daemon holds everything serve wires together so it can be torn down in
// reverse order.
type daemon struct {
	cfg       *config.Config
	cfgFile   string
	store     *sqlite.Store
	net       *network.Network
	decisions *state.DecisionLog
	sinks     *delivery.Registry
	memory    *tools.Memory
	bridge    *bridge.Bridge
	telegram  *telegram.Adapter
	sched     *scheduler.Scheduler
	api       *api.Server
	watcher   *config.Watcher
	reloadMu  sync.Mutex
	closeOnce sync.Once
}

func signerFromConfig(cfg *config.Config) (manifest.Signer, error) {
	switch {
	case cfg.Signing.Ed25519Key != "":
		return manifest.NewEd25519Signer(cfg.Signing.Ed25519Key)
	case cfg.Signing.Secret != "":
		return manifest.NewHMACSigner(cfg.Signing.Secret)
	}
	return nil, nil
}

func providerFromConfig(cfg *config.Config) llm.Provider {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	policy := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		policy.MaxAttempts = cfg.LLM.MaxRetries
	}
	return llm.WithRetry(openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}), policy)
}

func toolsFromConfig(cfg *config.Config, memory *tools.Memory) []tools.Tool {
	list := []tools.Tool{tools.NewMemoryRead(memory)}
	if cfg.Brave.APIKey != "" {
		list = append(list, tools.NewWebSearch(cfg.Brave.APIKey))
	}
	if cfg.Serp.APIKey != "" {
		list = append(list, tools.NewNewsSearch(cfg.Serp.APIKey))
	}
	if cfg.Giphy.APIKey != "" {
		list = append(list, tools.NewGiphySearch(cfg.Giphy.APIKey))
	}
	return list
}

func schedulesFromConfig(cfg *config.Config) []scheduler.Schedule {
	out := make([]scheduler.Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		out = append(out, scheduler.Schedule{Name: s.Name, Spec: s.Spec})
	}
	return out
}

// newDaemon opens storage and builds the network with its citizens. Nothing
// runs until start.
func newDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	signer, err := signerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create manifest signer: %w", err)
	}
	counter, err := newCounter(cfg.LLM.Model)
	if err != nil {
		slog.Warn("no tokenizer for model, approximating", "model", cfg.LLM.Model, "error", err)
		counter = budget.Approximate()
	}

	store, err := sqlite.Open(ctx, filepath.Join(cfg.DataDir, "wonderland.db"))
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:       cfg,
		cfgFile:   cfgPath,
		store:     store,
		decisions: state.NewDecisionLog(cfg.DataDir),
		sinks:     delivery.NewRegistry(),
		memory:    tools.NewMemory(filepath.Join(cfg.DataDir, "memory")),
		net: network.New(network.Config{
			NetworkID: cfg.NetworkID,
			Signer:    signer,
			Budget:    counter,
		}),
	}
	n := d.net
	n.SetPostStore(store)
	n.SetMoodStore(store)
	n.SetEnclaveStore(store)
	n.SetBrowsingStore(store)
	n.SetPromptEvolutionStore(store)

	if provider := providerFromConfig(cfg); provider != nil {
		n.SetLLMForAll(provider)
		n.SetSentimentEstimator(voice.NewLLMEstimator(provider, cfg.LLM.Model))
	} else {
		slog.Warn("no LLM API key, citizens write placeholder posts")
	}
	n.RegisterToolsForAll(toolsFromConfig(cfg, d.memory))

	roster, err := config.LoadRoster(cfg.CitizensFile)
	if err != nil {
		d.close()
		return nil, err
	}
	for _, c := range roster.Citizens {
		if _, err := n.RegisterCitizen(ctx, c); err != nil {
			slog.Error("register citizen failed", "seed_id", c.Seed.SeedID, "error", err)
		}
	}
	if err := n.InitializeEnclaveSystem(ctx); err != nil {
		d.close()
		return nil, err
	}
	for _, src := range roster.NewsSources {
		n.RegisterNewsSource(src)
	}
	if restored, err := n.RestorePosts(ctx, restoredPostLimit); err != nil {
		slog.Warn("restore posts failed", "error", err)
	} else if restored > 0 {
		slog.Info("restored posts", "count", restored)
	}

	d.sinks.Register("log", func(_ context.Context, p *types.WonderlandPost) error {
		slog.Info("post published", "seed_id", p.SeedID, "post_id", p.PostID, "level", p.AgentLevelAtPost)
		return nil
	})
	d.sinks.Register("memory", func(_ context.Context, p *types.WonderlandPost) error {
		return d.memory.Append(p.SeedID, p.Content)
	})
	n.OnPostPublished(func(ctx context.Context, p *types.WonderlandPost) {
		if err := d.sinks.Deliver(ctx, p); err != nil {
			slog.Warn("post delivery failed", "post_id", p.PostID, "error", err)
		}
	})
	n.OnApprovalDecision(func(e *types.ApprovalQueueEntry) {
		if _, err := d.decisions.Append(context.Background(), e); err != nil {
			slog.Error("record approval decision failed", "queue_id", e.QueueID, "error", err)
		}
	})
	n.OnApprovalRequired(func(_ context.Context, e *types.ApprovalQueueEntry) {
		slog.Info("post awaiting approval", "seed_id", e.SeedID, "owner_id", e.OwnerID, "queue_id", e.QueueID)
	})

	if cfg.HTTP.Enabled {
		d.api = api.NewServer(n, api.Options{Decisions: d.decisions})
	}
	return d, nil
}

// start connects the outer surfaces and begins processing.
func (d *daemon) start(ctx context.Context) error {
	cfg := d.cfg
	n := d.net

	if cfg.NATS.URL != "" {
		b, err := bridge.Connect(cfg.NATS.URL, n.Router(), bridge.Options{
			Prefix: cfg.NATS.Prefix,
			Name:   "wonderland-" + n.ID(),
		})
		if err != nil {
			return err
		}
		if err := b.Start(ctx); err != nil {
			b.Close()
			return err
		}
		d.bridge = b
		d.sinks.Register("nats", b.PublishPost)
		n.OnTelemetryUpdate(b.PublishTelemetry)
		slog.Info("nats bridge started", "url", cfg.NATS.URL, "subject", b.StimulusSubject())
	}

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, n, cfg.Telegram.Owners)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		d.telegram = adapter
		n.OnApprovalRequired(adapter.NotifyApproval)
		go adapter.Start(ctx)
		slog.Info("telegram adapter started", "owners", len(cfg.Telegram.Owners))
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	n.Start()

	d.sched = scheduler.New(n.Router(), d.schedulerOptions())
	if err := d.sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	slog.Info("scheduler started", "entries", d.sched.Entries())

	w, err := config.Watch(ctx, config.DefaultDebounce, func(path string) { d.reload(ctx, path) },
		d.cfgFile, cfg.CitizensFile)
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		d.watcher = w
	}
	return nil
}

// reload applies an edited config or roster file. Schedules and news
// polling follow the config; new roster entries become citizens. Anything
// else takes effect on restart.
func (d *daemon) reload(ctx context.Context, path string) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	switch absPath(path) {
	case absPath(d.cfgFile):
		cfg, err := config.Load(path)
		if err != nil {
			slog.Error("reload config failed", "error", err)
			return
		}
		setupLogging(cfg)
		d.cfg.Schedules = cfg.Schedules
		d.cfg.ExpireSpec = cfg.ExpireSpec
		d.cfg.News.Enabled = cfg.News.Enabled
		if d.sched == nil {
			return
		}
		if err := d.sched.Reload(d.schedulerOptions()); err != nil {
			slog.Error("reload scheduler failed", "error", err)
			return
		}
		slog.Info("config reloaded", "entries", d.sched.Entries())
	case absPath(d.cfg.CitizensFile):
		roster, err := config.LoadRoster(path)
		if err != nil {
			slog.Error("reload roster failed", "error", err)
			return
		}
		added := 0
		for _, c := range roster.Citizens {
			if d.net.Citizen(c.Seed.SeedID) != nil {
				continue
			}
			if _, err := d.net.RegisterCitizen(ctx, c); err != nil {
				slog.Error("register citizen failed", "seed_id", c.Seed.SeedID, "error", err)
				continue
			}
			added++
		}
		for _, src := range roster.NewsSources {
			d.net.RegisterNewsSource(src)
		}
		slog.Info("roster reloaded", "added", added)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func (d *daemon) schedulerOptions() scheduler.Options {
	opts := scheduler.Options{
		Schedules:  schedulesFromConfig(d.cfg),
		Poller:     d.net.NewsIngester(),
		Expirer:    d.net,
		ExpireSpec: d.cfg.ExpireSpec,
	}
	if d.cfg.News.Enabled {
		opts.NewsSources = d.net.NewsSources()
	}
	return opts
}

func (d *daemon) close() {
	d.closeOnce.Do(func() {
		if d.sched != nil {
			d.sched.Stop()
		}
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.bridge != nil {
			if err := d.bridge.Close(); err != nil {
				slog.Warn("close nats bridge", "error", err)
			}
		}
		d.net.Close()
		if err := d.store.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()
	if err := d.start(ctx); err != nil {
		return err
	}

	rec := daemonRecord{PID: os.Getpid(), NetworkID: d.net.ID(), StartedAt: time.Now()}
	if d.api != nil {
		rec.Listen = cfg.HTTP.Listen
	}
	pidPath, err := writeDaemonRecord(cfg.DataDir, rec)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	var httpServer *http.Server
	if d.api != nil {
		httpServer = &http.Server{Addr: cfg.HTTP.Listen, Handler: d.api}
		go func() {
			slog.Info("http api started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http api error", "error", err)
			}
		}()
	}

	slog.Info("wonderland started",
		"network_id", d.net.ID(),
		"data_dir", cfg.DataDir,
		"citizens", len(d.net.ListCitizens()),
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			shutdownHTTP(httpServer)
			d.close()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return err
			}
		}
		slog.Info("shutting down", "signal", sig)
		shutdownHTTP(httpServer)
		return nil
	}
}

func shutdownHTTP(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
}
