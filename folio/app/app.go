// Package app assembles the folio server from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/agent"
	"github.com/ZanzyTHEbar/folio/folio/agent/adapters"
	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/agent/provider"
	"github.com/ZanzyTHEbar/folio/folio/agent/tools"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/db"
	"github.com/ZanzyTHEbar/folio/folio/meeting"
	"github.com/ZanzyTHEbar/folio/folio/notify"
	"github.com/ZanzyTHEbar/folio/folio/profile"
	"github.com/ZanzyTHEbar/folio/folio/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// App owns every long-lived component of a running server.
type App struct {
	Server     *server.Server
	Dispatcher *agent.Dispatcher
	Meetings   *meeting.Service
	Profiles   *profile.Store
	Channels   *notify.Registry
	Ledger     ports.Ledger

	cfg    *config.Config
	logger zerolog.Logger
	db     *sql.DB
	redis  *redis.Client

	cancel  context.CancelFunc
	workers conc.WaitGroup
}

// pruner is implemented by ledgers that need resolved records removed.
type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Build opens storage and wires the agent, side channels and HTTP server.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	conn, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.db = conn

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	ledger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	a.Ledger = ledger

	channels, err := a.openChannels()
	if err != nil {
		return err
	}
	a.Channels = channels

	meetings, err := a.openMeetings()
	if err != nil {
		return err
	}
	a.Meetings = meetings

	a.Profiles = profile.NewStore(a.db)
	if cfg.Profile.SeedFile != "" {
		if err := a.Profiles.SeedFile(ctx, cfg.Profile.SeedFile, a.logger); err != nil {
			return err
		}
	}

	factory := agent.NewFactory(&cfg.Agent, &cfg.Ledger, a.db, a.logger)
	tracer := factory.CreateTracer()
	a.Dispatcher = agent.NewDispatcher(ledger,
		agent.WithGuardrails(factory.CreateGuardrails()),
		agent.WithTracer(tracer),
		agent.WithLogger(a.logger),
		agent.WithTimeouts(cfg.Agent.ToolTimeout, cfg.Agent.JobTimeout),
	)
	if err := a.registerTools(factory.CreateCache()); err != nil {
		return err
	}

	reasoner, err := newProvider(cfg.Agent)
	if err != nil {
		return err
	}

	orch := agent.NewOrchestrator(
		reasoner,
		a.Dispatcher,
		ledger,
		factory.CreateTranscriptStore(),
		factory.CreateRateLimiter(),
		tracer,
		factory.CreatePolicy(),
		a.logger,
	)

	a.Server = server.New(cfg.Server, server.Deps{
		Chat:     orch,
		Meetings: a.Meetings,
		Profiles: a.Profiles,
		Channels: a.Channels,
	}, a.logger)

	a.startJanitor()
	return nil
}

func (a *App) openLedger(ctx context.Context) (ports.Ledger, error) {
	cfg := a.cfg.Ledger
	switch strings.ToLower(cfg.Backend) {
	case "", "libsql":
		return adapters.NewLibSQLLedger(a.db), nil
	case "memory":
		return adapters.NewMemoryLedger(), nil
	case "redis":
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return adapters.NewRedisLedger(rdb, cfg.KeyPrefix, cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	opts, err := redis.ParseURL(a.cfg.Ledger.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	a.redis = rdb
	return rdb, nil
}

// openChannels registers Discord and Teams. A disabled channel is served by a
// webhook hub under the same name.
func (a *App) openChannels() (*notify.Registry, error) {
	cfg := a.cfg.Notify
	reg := notify.NewRegistry()

	if cfg.Discord.Enabled {
		d, err := notify.NewDiscord(cfg.Discord, a.logger)
		if err != nil {
			return nil, err
		}
		reg.Add(d)
	} else {
		reg.Add(notify.NewHub("discord", a.logger))
	}

	if cfg.Teams.Enabled {
		t, err := notify.NewTeams(cfg.Teams, nil, nil, a.logger)
		if err != nil {
			return nil, err
		}
		reg.Add(t)
	} else {
		reg.Add(notify.NewHub("teams", a.logger))
	}

	a.logger.Info().Strs("channels", reg.Names()).Msg("side channels ready")
	return reg, nil
}

func (a *App) openMeetings() (*meeting.Service, error) {
	cfg := a.cfg.Meeting

	var kv meeting.KV
	switch strings.ToLower(cfg.TranscriptStore) {
	case "", "libsql":
		kv = meeting.NewLibSQLKV(a.db)
	case "redis":
		rdb, err := a.redisClient(context.Background())
		if err != nil {
			return nil, err
		}
		kv = meeting.NewRedisKV(rdb, a.cfg.Ledger.Retention)
	case "none":
		kv = meeting.NopKV{}
	default:
		return nil, fmt.Errorf("unknown meeting transcript store %q", cfg.TranscriptStore)
	}

	var approver *meeting.Approver
	if cfg.ApprovalChannel != "" {
		n, err := a.Channels.Get(cfg.ApprovalChannel)
		if err != nil {
			return nil, fmt.Errorf("meeting approval channel: %w", err)
		}
		approver = meeting.NewApprover(n, kv, cfg.ApprovalInterval, cfg.ApprovalTimeout, a.logger)
	}

	return meeting.NewService(meeting.NewStore(a.db), approver, meeting.ServiceOptions{
		AutoApprove: cfg.AutoApprove,
		Owner:       a.cfg.Agent.OwnerName,
		JobTimeout:  a.cfg.Agent.JobTimeout,
	}, a.logger), nil
}

func (a *App) registerTools(cache ports.Cache) error {
	notifyCfg := a.cfg.Notify

	discord, err := a.Channels.Get("discord")
	if err != nil {
		return err
	}
	teams, err := a.Channels.Get("teams")
	if err != nil {
		return err
	}

	a.Dispatcher.Register(
		tools.NewDiscordTool(discord, notifyCfg.ReplyInterval, notifyCfg.ReplyTimeout),
		tools.NewTeamsTool(teams, notifyCfg.ReplyInterval, notifyCfg.ReplyTimeout),
		tools.NewProfileTool(a.Profiles, cache, a.cfg.Agent.CacheTTLSeconds),
		tools.NewListMeetingsTool(a.Meetings),
		tools.NewScheduleMeetingTool(a.Meetings),
	)
	return nil
}

func newProvider(cfg config.AgentConfig) (ports.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "rules":
		return provider.NewRules(cfg.OwnerName, "discord_tool"), nil
	case "openai":
		p, err := provider.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("agent.provider openai: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}

// startJanitor prunes delivered ledger records older than the retention window.
func (a *App) startJanitor() {
	p, ok := a.Ledger.(pruner)
	if !ok || a.cfg.Ledger.Retention <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	retention := a.cfg.Ledger.Retention
	every := min(retention/4, time.Hour)
	if every <= 0 {
		every = time.Minute
	}

	a.workers.Go(func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := p.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					a.logger.Warn().Err(err).Msg("ledger prune failed")
					continue
				}
				if n > 0 {
					a.logger.Debug().Int64("removed", n).Msg("ledger pruned")
				}
			}
		}
	})
}

// Close stops background work and releases storage. It is safe to call on a
// partially built App.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.workers.Wait()
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Meetings != nil {
		a.Meetings.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close database")
		}
	}
}
