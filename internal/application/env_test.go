package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/hearing-scheduler/internal/directory"
	"github.com/example/hearing-scheduler/internal/directory/memory"
	"github.com/example/hearing-scheduler/internal/persistence/memdb"
)

var testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

const testOrganizer = "organizer-1"

// testEnv wires every service over an in-memory store and directory with two
// seeded facilities, two focus users and two recorders.
type testEnv struct {
	t      *testing.T
	ctx    context.Context
	now    time.Time
	logger *slog.Logger

	repos      *DocumentRepositories
	dir        *memory.Directory
	tenant     TenantSettings
	resolver   *IdentityResolver
	reconciler *TeamMembershipReconciler
	holding    *HoldingCallService
	calendars  *CalendarService

	f1, f2 Facility
	seq    int
}

func testTenant() TenantSettings {
	return TenantSettings{
		MeetingsChannel: "Meetings",
		Channels: []TenantChannelSetting{
			{Name: "General", MembershipType: directory.MembershipStandard, IsDefaultChannel: true},
			{Name: "Meetings", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{1, 2}, AddRecorderUser: true},
			{Name: "Evidence", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{2}},
		},
		Apps: []CompanionApp{
			{AppID: "app-console", TabName: "Hearing Console", ContentURL: "https://console.example/tab"},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{t: t, ctx: context.Background(), now: testNow, logger: discardLogger(), tenant: testTenant()}

	store, err := memdb.New(env.clock)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env.repos = NewDocumentRepositories(store)
	env.dir = memory.New()
	env.resolver = NewIdentityResolver(env.repos, env.repos, env.logger)
	env.reconciler = NewTeamMembershipReconciler(env.dir, env.repos, env.resolver, env.tenant.Channels, env.logger)
	env.holding = NewHoldingCallServiceWithLogger(env.repos, env.dir, testOrganizer, env.nextID, env.clock, env.logger)
	env.calendars = NewCalendarServiceWithLogger(CalendarDependencies{
		Calendars:    env.repos,
		Events:       env.repos,
		Facilities:   env.repos,
		Departments:  env.repos,
		Identities:   env.resolver,
		Reconciler:   env.reconciler,
		HoldingCalls: env.holding,
		Meetings:     env.dir,
		OrganizerID:  testOrganizer,
	}, env.nextID, env.clock, env.logger)

	env.f1 = env.seedFacility("f1", "Court 1")
	env.f2 = env.seedFacility("f2", "Court 2")

	env.seedUser("a@example.com", "aad-a", 2, true)
	env.seedUser("b@example.com", "aad-b", 1, true)
	env.seedRecorder("r1@example.com", "aad-r1", 1, true)
	env.seedRecorder("r2@example.com", "aad-r2", 1, false)
	if err := env.repos.SaveDepartment(env.ctx, Department{ID: "dept-1", Name: "Civil"}); err != nil {
		t.Fatalf("failed to seed department: %v", err)
	}

	env.dir.ResetCalls()
	return env
}

func (e *testEnv) clock() time.Time { return e.now }

func (e *testEnv) nextID() string {
	e.seq++
	return fmt.Sprintf("id-%d", e.seq)
}

func (e *testEnv) seedFacility(id, name string) Facility {
	e.t.Helper()
	teamID := "team-" + id
	channels := []TeamChannel{
		{ID: id + "-general", Name: "General", MembershipType: directory.MembershipStandard, IsDefaultChannel: true},
		{ID: id + "-meetings", Name: "Meetings", MembershipType: directory.MembershipPrivate, AddRecorderUser: true},
		{ID: id + "-evidence", Name: "Evidence", MembershipType: directory.MembershipPrivate},
	}
	seeded := make([]directory.Channel, 0, len(channels))
	for _, ch := range channels {
		seeded = append(seeded, directory.Channel{ID: ch.ID, Name: ch.Name, MembershipType: ch.MembershipType, IsDefault: ch.IsDefaultChannel})
	}
	e.dir.SeedTeam(teamID, name, seeded)

	facility := Facility{
		ID:          id,
		DisplayName: name,
		Team:        Team{MSTeamID: teamID, Name: name, Type: TeamTypeStandard, Channels: channels, Apps: []InstalledApp{}},
		State:       ProvisioningActive,
		CreatedAt:   e.now,
		UpdatedAt:   e.now,
	}
	if _, err := e.repos.CreateFacility(e.ctx, facility); err != nil {
		e.t.Fatalf("failed to seed facility: %v", err)
	}
	return facility
}

func (e *testEnv) seedUser(email, aadID string, level AccessLevel, active bool) {
	e.t.Helper()
	if err := e.repos.SaveUser(e.ctx, User{Email: email, MSAadID: aadID, AccessLevel: level, Active: active}); err != nil {
		e.t.Fatalf("failed to seed user: %v", err)
	}
	e.dir.RegisterUser(aadID, email)
}

func (e *testEnv) seedRecorder(email, aadID string, level AccessLevel, active bool) {
	e.t.Helper()
	if err := e.repos.SaveRecorder(e.ctx, Recorder{Email: email, MSAadID: aadID, AccessLevel: level, Active: active}); err != nil {
		e.t.Fatalf("failed to seed recorder: %v", err)
	}
	e.dir.RegisterUser(aadID, email)
}

func (e *testEnv) createCalendar(externalID, facilityID string, focus, recorders []string) Calendar {
	e.t.Helper()
	cal, err := e.calendars.Create(e.ctx, CalendarInput{
		ExternalCalendarID: externalID,
		FacilityID:         facilityID,
		DepartmentID:       "dept-1",
		FocusUsers:         focus,
		Recorders:          recorders,
	})
	if err != nil {
		e.t.Fatalf("failed to create calendar %s: %v", externalID, err)
	}
	return cal
}

func (e *testEnv) teamMembers(f Facility) []string {
	return e.dir.TeamMembers(f.Team.MSTeamID)
}

func (e *testEnv) channelMembers(f Facility, channel string) []string {
	return e.dir.ChannelMembers(f.Team.MSTeamID, channel)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }

func slicePtr(values ...string) *[]string { return &values }
