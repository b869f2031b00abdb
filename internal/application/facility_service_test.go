package application

import (
	"errors"
	"testing"
)

func (e *testEnv) facilityService() *FacilityService {
	provisioner := newTestProvisioner(e.dir, e.tenant)
	return NewFacilityServiceWithLogger(e.repos, e.repos, provisioner, e.dir, e.nextID, e.clock, e.logger)
}

func TestFacilityService_Create(t *testing.T) {
	t.Run("provisions the team and activates the facility", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.facilityService()

		facility, err := svc.Create(env.ctx, FacilityInput{DisplayName: " Court 9 ", Location: Location{City: "Springfield"}})
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if facility.State != ProvisioningActive {
			t.Fatalf("expected Active, got %s", facility.State)
		}
		if facility.DisplayName != "Court 9" || facility.Team.Type != TeamTypeStandard {
			t.Fatalf("unexpected facility: %+v", facility)
		}
		if facility.Team.MSTeamID == "" || len(facility.Team.Channels) != 3 {
			t.Fatalf("expected provisioned team, got %+v", facility.Team)
		}

		stored, err := svc.Get(env.ctx, facility.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if stored.Team.MSTeamID != facility.Team.MSTeamID {
			t.Fatalf("expected stored team id %s, got %s", facility.Team.MSTeamID, stored.Team.MSTeamID)
		}
	})

	t.Run("removes the record when provisioning times out", func(t *testing.T) {
		env := newTestEnv(t)
		env.dir.CompleteAfter(0)
		svc := env.facilityService()

		_, err := svc.Create(env.ctx, FacilityInput{DisplayName: "Court 9"})
		if !errors.Is(err, ErrProvisioningTimeout) {
			t.Fatalf("expected ErrProvisioningTimeout, got %v", err)
		}
		facilities, err := svc.List(env.ctx)
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(facilities) != 2 {
			t.Fatalf("expected only the seeded facilities, got %d", len(facilities))
		}
	})

	t.Run("validates input", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.facilityService()

		_, err := svc.Create(env.ctx, FacilityInput{TeamType: "club"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"displayName", "teamType"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
		if env.dir.Calls("CreateTeam") != 0 {
			t.Fatalf("no team should be created")
		}
	})
}

func TestFacilityService_List(t *testing.T) {
	env := newTestEnv(t)
	svc := env.facilityService()

	facilities, err := svc.List(env.ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(facilities) != 2 || facilities[0].ID != "f1" || facilities[1].ID != "f2" {
		t.Fatalf("unexpected facilities: %+v", facilities)
	}
}

func TestFacilityService_Update(t *testing.T) {
	env := newTestEnv(t)
	svc := env.facilityService()

	updated, err := svc.Update(env.ctx, "f1", FacilityPatch{DisplayName: strPtr("Court 1A")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.DisplayName != "Court 1A" || updated.Team.Name != "Court 1A" {
		t.Fatalf("unexpected facility: %+v", updated)
	}
	if got := env.dir.TeamName("team-f1"); got != "Court 1A" {
		t.Fatalf("expected team renamed, got %q", got)
	}

	if _, err := svc.Update(env.ctx, "f1", FacilityPatch{DisplayName: strPtr("  ")}); err == nil {
		t.Fatalf("expected validation error for blank name")
	}
	if _, err := svc.Update(env.ctx, "missing", FacilityPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFacilityService_Delete(t *testing.T) {
	t.Run("refuses while a calendar references the facility", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.facilityService()
		env.createCalendar("CAL-1", "f1", nil, nil)

		if err := svc.Delete(env.ctx, "f1"); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("deletes an unreferenced facility", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.facilityService()

		if err := svc.Delete(env.ctx, "f2"); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if _, err := svc.Get(env.ctx, "f2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown facility is not found", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.facilityService().Delete(env.ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
