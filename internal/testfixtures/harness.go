package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/hearing-scheduler/internal/application"
	"github.com/example/hearing-scheduler/internal/directory"
	"github.com/example/hearing-scheduler/internal/directory/memory"
	"github.com/example/hearing-scheduler/internal/persistence"
)

// Harness wires every application service over a document store and the
// in-memory directory, seeded with two ready facilities and the reference
// users, recorders and departments.
type Harness struct {
	Clock     *Clock
	IDs       *IDGenerator
	Logger    *slog.Logger
	Tenant    application.TenantSettings
	Store     persistence.Store
	Repos     *application.DocumentRepositories
	Directory *memory.Directory

	Resolver     *application.IdentityResolver
	Reconciler   *application.TeamMembershipReconciler
	Provisioner  *application.FacilityTeamProvisioner
	HoldingCalls *application.HoldingCallService
	Calendars    *application.CalendarService
	Facilities   *application.FacilityService
}

type harnessConfig struct {
	sqlite  bool
	polling application.PollingOptions
	logger  *slog.Logger
	clock   *Clock
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

// WithSQLite stores documents in a temporary SQLite database instead of memory.
func WithSQLite() HarnessOption {
	return func(c *harnessConfig) { c.sqlite = true }
}

// WithPolling overrides the provisioner polling bounds.
func WithPolling(polling application.PollingOptions) HarnessOption {
	return func(c *harnessConfig) { c.polling = polling }
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(c *harnessConfig) { c.logger = logger }
}

// WithClock overrides the harness clock.
func WithClock(clock *Clock) HarnessOption {
	return func(c *harnessConfig) { c.clock = clock }
}

// FastPolling keeps provisioning tests quick.
func FastPolling() application.PollingOptions {
	return application.PollingOptions{
		TeamInterval: time.Millisecond,
		TeamAttempts: 3,
		TabInterval:  time.Millisecond,
		TabAttempts:  3,
	}
}

// NewHarness builds and seeds a harness.
func NewHarness(tb testing.TB, opts ...HarnessOption) *Harness {
	tb.Helper()

	cfg := harnessConfig{polling: FastPolling()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock(time.Time{})
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Harness{
		Clock:     cfg.clock,
		IDs:       NewIDGenerator("id"),
		Logger:    cfg.logger,
		Tenant:    Tenant(),
		Directory: memory.New(),
	}
	if cfg.sqlite {
		h.Store = NewSQLiteStore(tb, h.Clock.NowFunc())
	} else {
		h.Store = NewMemoryStore(tb, h.Clock.NowFunc())
	}
	h.Repos = application.NewDocumentRepositories(h.Store)

	now := h.Clock.NowFunc()
	next := h.IDs.NextFunc()
	h.Resolver = application.NewIdentityResolver(h.Repos, h.Repos, h.Logger)
	h.Reconciler = application.NewTeamMembershipReconciler(h.Directory, h.Repos, h.Resolver, h.Tenant.Channels, h.Logger)
	h.Provisioner = application.NewFacilityTeamProvisioner(h.Directory, h.Tenant, cfg.polling, h.Logger)
	h.HoldingCalls = application.NewHoldingCallServiceWithLogger(h.Repos, h.Directory, OrganizerID, next, now, h.Logger)
	h.Calendars = application.NewCalendarServiceWithLogger(application.CalendarDependencies{
		Calendars:    h.Repos,
		Events:       h.Repos,
		Facilities:   h.Repos,
		Departments:  h.Repos,
		Identities:   h.Resolver,
		Reconciler:   h.Reconciler,
		HoldingCalls: h.HoldingCalls,
		Meetings:     h.Directory,
		OrganizerID:  OrganizerID,
	}, next, now, h.Logger)
	h.Facilities = application.NewFacilityServiceWithLogger(h.Repos, h.Repos, h.Provisioner, h.Directory, next, now, h.Logger)

	h.seed(tb)
	h.Directory.ResetCalls()
	return h
}

func (h *Harness) seed(tb testing.TB) {
	tb.Helper()
	ctx := context.Background()

	for _, id := range []string{FacilityOneID, FacilityTwoID} {
		h.SeedFacility(tb, id, "Court "+id[len(id)-1:])
	}
	for _, user := range Users() {
		if err := h.Repos.SaveUser(ctx, user); err != nil {
			tb.Fatalf("failed to seed user %s: %v", user.Email, err)
		}
		h.Directory.RegisterUser(user.MSAadID, user.Email)
	}
	for _, rec := range Recorders() {
		if err := h.Repos.SaveRecorder(ctx, rec); err != nil {
			tb.Fatalf("failed to seed recorder %s: %v", rec.Email, err)
		}
		h.Directory.RegisterUser(rec.MSAadID, rec.Email)
	}
	for _, dept := range Departments() {
		if err := h.Repos.SaveDepartment(ctx, dept); err != nil {
			tb.Fatalf("failed to seed department %s: %v", dept.ID, err)
		}
	}
}

// SeedFacility stores an active facility whose team already exists in the
// directory.
func (h *Harness) SeedFacility(tb testing.TB, id, name string) application.Facility {
	tb.Helper()

	channels := TeamChannels(id)
	seeded := make([]directory.Channel, 0, len(channels))
	for _, ch := range channels {
		seeded = append(seeded, directory.Channel{ID: ch.ID, Name: ch.Name, MembershipType: ch.MembershipType, IsDefault: ch.IsDefaultChannel})
	}
	h.Directory.SeedTeam(TeamID(id), name, seeded)

	now := h.Clock.Now()
	facility, err := h.Repos.CreateFacility(context.Background(), application.Facility{
		ID:          id,
		DisplayName: name,
		Team:        application.Team{MSTeamID: TeamID(id), Name: name, Type: application.TeamTypeStandard, Channels: channels, Apps: []application.InstalledApp{}},
		State:       application.ProvisioningActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		tb.Fatalf("failed to seed facility %s: %v", id, err)
	}
	return facility
}
