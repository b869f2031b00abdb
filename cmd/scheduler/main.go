package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/hearing-scheduler/internal/application"
	"github.com/example/hearing-scheduler/internal/config"
	"github.com/example/hearing-scheduler/internal/directory"
	"github.com/example/hearing-scheduler/internal/directory/graph"
	"github.com/example/hearing-scheduler/internal/directory/memory"
	httptransport "github.com/example/hearing-scheduler/internal/http"
	"github.com/example/hearing-scheduler/internal/logging"
	"github.com/example/hearing-scheduler/internal/persistence"
	"github.com/example/hearing-scheduler/internal/persistence/memdb"
	"github.com/example/hearing-scheduler/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	tenantPath := flags.String("tenant-config", "", "path to the tenant YAML file (overrides SCHEDULER_TENANT_CONFIG)")
	addr := flags.String("addr", "", "listen address (overrides SCHEDULER_HTTP_PORT)")
	hashKey := flags.String("hash-api-key", "", "print the argon2id hash of the given API key and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *hashKey != "" {
		hash, err := httptransport.HashAPIKey(*hashKey, httptransport.DefaultArgon2idParams)
		if err != nil {
			return fmt.Errorf("hash api key: %w", err)
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	}

	if *tenantPath != "" {
		if err := os.Setenv("SCHEDULER_TENANT_CONFIG", *tenantPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(cfg.LogLevel, stdout)

	tenant, err := config.LoadTenant(cfg.TenantConfig)
	if err != nil {
		return fmt.Errorf("load tenant settings: %w", err)
	}

	app, err := newApp(ctx, cfg, tenant, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	listen := *addr
	if listen == "" {
		listen = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	server := &http.Server{
		Addr:              listen,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "store", cfg.Store, "directory", cfg.Directory)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

type app struct {
	store   persistence.Store
	handler http.Handler
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp(ctx context.Context, cfg config.Config, tenant *config.Tenant, logger *slog.Logger) (*app, error) {
	authorizer, err := httptransport.NewAPIKeyAuthorizer(cfg.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("parse api key hash: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	dir, err := openDirectory(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	settings := tenantSettings(tenant)
	idGenerator := uuid.NewString
	now := time.Now

	repos := application.NewDocumentRepositories(store)
	resolver := application.NewIdentityResolver(repos, repos, logger)
	reconciler := application.NewTeamMembershipReconciler(dir, repos, resolver, settings.Channels, logger)
	provisioner := application.NewFacilityTeamProvisioner(dir, settings, application.PollingOptions{
		TeamInterval: cfg.TeamPollInterval,
		TeamAttempts: cfg.TeamPollAttempts,
		TabInterval:  cfg.TabPollInterval,
		TabAttempts:  cfg.TabPollAttempts,
	}, logger)
	holdingCalls := application.NewHoldingCallServiceWithLogger(repos, dir, cfg.MeetingOrganizer, idGenerator, now, logger)
	calendars := application.NewCalendarServiceWithLogger(application.CalendarDependencies{
		Calendars:    repos,
		Events:       repos,
		Facilities:   repos,
		Departments:  repos,
		Identities:   resolver,
		Reconciler:   reconciler,
		HoldingCalls: holdingCalls,
		Meetings:     dir,
		OrganizerID:  cfg.MeetingOrganizer,
	}, idGenerator, now, logger)
	facilities := application.NewFacilityServiceWithLogger(repos, repos, provisioner, dir, idGenerator, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Calendars:    httptransport.NewCalendarHandler(calendars, logger),
		HoldingCalls: httptransport.NewHoldingCallHandler(holdingCalls, logger),
		Facilities:   httptransport.NewFacilityHandler(facilities, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireAuthorization(authorizer, logger),
		},
	})
	return &app{store: store, handler: router}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		store, err := memdb.New(time.Now)
		if err != nil {
			return nil, fmt.Errorf("create memory store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.OpenWithLogger(ctx, cfg.SQLiteDSN, time.Now, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func openDirectory(ctx context.Context, cfg config.Config) (application.Directory, error) {
	if cfg.Directory == config.DirectoryMemory {
		return memory.New(), nil
	}
	client, err := graph.New(ctx, graph.Options{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphSecret,
		BaseURL:      cfg.GraphBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	return client, nil
}

func tenantSettings(tenant *config.Tenant) application.TenantSettings {
	settings := application.TenantSettings{MeetingsChannel: tenant.MeetingsChannel}
	for _, ch := range tenant.Channels {
		levels := make([]application.AccessLevel, 0, len(ch.AccessLevels))
		for _, level := range ch.AccessLevels {
			levels = append(levels, application.AccessLevel(level))
		}
		membership := directory.MembershipType(ch.MembershipType)
		if membership == "" {
			membership = directory.MembershipStandard
		}
		settings.Channels = append(settings.Channels, application.TenantChannelSetting{
			Name:             ch.Name,
			MembershipType:   membership,
			AccessLevels:     levels,
			AddRecorderUser:  ch.AddRecorderUser,
			IsDefaultChannel: ch.IsDefaultChannel,
		})
	}
	for _, a := range tenant.Apps {
		settings.Apps = append(settings.Apps, application.CompanionApp{
			AppID:      a.AppID,
			TabName:    a.TabName,
			ContentURL: a.ContentURL,
			WebsiteURL: a.WebsiteURL,
		})
	}
	return settings
}
