package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/clock"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/config"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/discord"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/groups"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/httpapi"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/permission"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/tasks"
)

const groupExpiryInterval = time.Minute

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Bot      *discord.Bot
	Checkins *checkin.Service
	Groups   *groups.Service
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release the gateway session,
	// the reminder loops and the database pool.
	Cleanup func() error
}

// Build wires every service against one discord session and, when
// DATABASE_URL is set, one shared Postgres pool.
func Build(ctx context.Context, cfg config.Config, log *logrus.Logger) (*BuildResult, error) {
	if err := cfg.RequireDiscord(); err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	closePool := func() {
		if pool != nil {
			pool.Close()
		}
	}

	taskStore, err := tasks.NewStore(ctx, pool)
	if err != nil {
		closePool()
		return nil, fmt.Errorf("task store init failed: %w", err)
	}
	groupStore, err := groups.NewStore(ctx, pool)
	if err != nil {
		closePool()
		return nil, fmt.Errorf("group store init failed: %w", err)
	}
	permStore, err := permission.NewStore(ctx, pool)
	if err != nil {
		closePool()
		return nil, fmt.Errorf("permission store init failed: %w", err)
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		closePool()
		return nil, err
	}
	session.LogLevel = discordLogLevel(log.GetLevel())
	client := discord.NewClient(session, log)
	clk := clock.Real()

	checkins := checkin.NewService(checkin.Limits{
		MinCycle:              cfg.CheckinMinDuration,
		MaxMembers:            cfg.CheckinMaxMembers,
		MaxAbsences:           cfg.CheckinMaxAbsences,
		MaxSessionsPerChannel: cfg.CheckinMaxSessionsPerChannel,
	}, checkin.Dependencies{
		Messenger:   client,
		Directory:   client,
		Clock:       clk,
		Metrics:     metrics,
		Logger:      log,
		CallTimeout: cfg.CallTimeout,
	})
	groupService := groups.NewService(groupStore, client, clk, groups.Options{
		DefaultMaxSize: cfg.GroupDefaultMaxSize,
		Lifetime:       cfg.GroupLifetime,
	}, log)

	taskService := tasks.NewService(taskStore, log)

	bot := discord.NewBot(session, client, discord.Services{
		Checkins:    checkins,
		Tasks:       taskService,
		Groups:      groupService,
		Permissions: permission.NewService(permStore, log),
		Resolver:    permission.NewResolver(permStore, cfg.DeveloperID),
	}, cfg.DiscordGuildID, metrics, log)

	storeMode := "in-memory"
	if pool != nil {
		storeMode = "postgres"
	}
	api := httpapi.New(cfg, httpapi.Deps{
		Checkins:  checkins,
		Tasks:     taskService,
		Groups:    groupService,
		Metrics:   metrics,
		Logger:    log,
		Ready:     bot.Ready,
		StoreMode: storeMode,
	})

	cleanup := func() error {
		var errs []string
		if err := bot.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		checkins.Close()
		for _, c := range []interface{ Close() error }{taskStore, groupStore, permStore} {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		closePool()
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Bot:      bot,
		Checkins: checkins,
		Groups:   groupService,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}

// Serve connects the bot, registers its commands and serves the HTTP API
// until ctx is cancelled.
func (r *BuildResult) Serve(ctx context.Context, log logrus.FieldLogger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.Bot.Open(runCtx); err != nil {
		return err
	}
	if err := r.Bot.SyncCommands(runCtx); err != nil {
		return err
	}
	go r.Groups.RunExpiry(runCtx, groupExpiryInterval)

	httpServer := &http.Server{
		Addr:              r.Config.BindAddr,
		Handler:           r.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listenErr := make(chan error, 1)
	go func() {
		log.WithField("addr", r.Config.BindAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-listenErr:
		log.WithError(err).Error("listen error")
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), r.Config.ShutdownTimeout)
	defer stop()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("graceful shutdown failed")
		_ = httpServer.Close()
	}
	return err
}

// SyncCommands registers the slash commands without starting the gateway
// connection.
func (r *BuildResult) SyncCommands(ctx context.Context) error {
	return r.Bot.SyncCommands(ctx)
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func discordLogLevel(l logrus.Level) int {
	switch {
	case l >= logrus.DebugLevel:
		return discordgo.LogInformational
	case l >= logrus.WarnLevel:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}
