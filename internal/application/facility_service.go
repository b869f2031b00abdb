package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// teamProvisioner creates facility teams.
type teamProvisioner interface {
	CreateTeam(ctx context.Context, displayName string, teamType TeamType) (TeamDetails, error)
}

// teamRenamer renames facility teams.
type teamRenamer interface {
	RenameTeam(ctx context.Context, teamID, name string) error
}

// FacilityService provisions and maintains facilities.
type FacilityService struct {
	facilities  FacilityRepository
	calendars   CalendarLister
	provisioner teamProvisioner
	teams       teamRenamer
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewFacilityService constructs a facility service with the provided dependencies.
func NewFacilityService(facilities FacilityRepository, calendars CalendarLister, provisioner teamProvisioner, teams teamRenamer, idGenerator func() string, now func() time.Time) *FacilityService {
	return NewFacilityServiceWithLogger(facilities, calendars, provisioner, teams, idGenerator, now, nil)
}

// NewFacilityServiceWithLogger constructs a facility service with a specified logger.
func NewFacilityServiceWithLogger(facilities FacilityRepository, calendars CalendarLister, provisioner teamProvisioner, teams teamRenamer, idGenerator func() string, now func() time.Time, logger *slog.Logger) *FacilityService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &FacilityService{
		facilities:  facilities,
		calendars:   calendars,
		provisioner: provisioner,
		teams:       teams,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *FacilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "FacilityService", operation, attrs...)
}

// Create records the facility as provisioning, provisions its team and marks
// it active. A fatal provisioning failure removes the record again.
func (s *FacilityService) Create(ctx context.Context, input FacilityInput) (facility Facility, err error) {
	if s == nil {
		err = fmt.Errorf("FacilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "display_name", input.DisplayName)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create facility", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("facility_id", facility.ID, "team_id", facility.Team.MSTeamID).InfoContext(ctx, "facility created")
	}()

	if input.TeamType == "" {
		input.TeamType = TeamTypeStandard
	}
	vErr := validateFacilityInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	pending := Facility{
		ID:          s.idGenerator(),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Location:    input.Location,
		Team:        Team{Name: strings.TrimSpace(input.DisplayName), Type: input.TeamType},
		State:       ProvisioningInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err = s.facilities.CreateFacility(ctx, pending); err != nil {
		err = mapRepoError(err)
		return
	}

	details, perr := s.provisioner.CreateTeam(ctx, pending.DisplayName, input.TeamType)
	if perr != nil {
		err = perr
		if derr := s.facilities.DeleteFacility(ctx, pending.ID); derr != nil {
			logger.WarnContext(ctx, "failed to remove unprovisioned facility; marking failed", "facility_id", pending.ID, "error", derr)
			pending.State = ProvisioningFailed
			pending.UpdatedAt = s.now()
			if _, uerr := s.facilities.UpdateFacility(ctx, pending); uerr != nil {
				logger.WarnContext(ctx, "failed to mark facility failed", "facility_id", pending.ID, "error", uerr)
			}
		}
		return
	}

	facility = pending
	facility.Team = details.Team
	facility.State = ProvisioningActive
	facility.UpdatedAt = s.now()
	facility, err = s.facilities.UpdateFacility(ctx, facility)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// Get loads a facility.
func (s *FacilityService) Get(ctx context.Context, id string) (Facility, error) {
	facility, err := s.facilities.GetFacility(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return Facility{}, notFound("facility", id)
		}
		return Facility{}, err
	}
	return facility, nil
}

// List returns every facility ordered by display name.
func (s *FacilityService) List(ctx context.Context) ([]Facility, error) {
	raw, err := s.facilities.ListFacilities(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	facilities := make([]Facility, len(raw))
	copy(facilities, raw)
	sort.Slice(facilities, func(i, j int) bool {
		if strings.EqualFold(facilities[i].DisplayName, facilities[j].DisplayName) {
			return facilities[i].ID < facilities[j].ID
		}
		return strings.ToLower(facilities[i].DisplayName) < strings.ToLower(facilities[j].DisplayName)
	})
	return facilities, nil
}

// Update changes the display name and location. Renaming the team is best effort.
func (s *FacilityService) Update(ctx context.Context, id string, patch FacilityPatch) (facility Facility, err error) {
	if s == nil {
		err = fmt.Errorf("FacilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update", "facility_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update facility", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "facility updated")
	}()

	var existing Facility
	existing, err = s.Get(ctx, id)
	if err != nil {
		return
	}

	if patch.DisplayName != nil && strings.TrimSpace(*patch.DisplayName) == "" {
		vErr := &ValidationError{}
		vErr.add("displayName", "displayName must not be empty")
		err = vErr
		return
	}

	updated := existing
	renamed := false
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		renamed = name != existing.DisplayName
		updated.DisplayName = name
	}
	if patch.Location != nil {
		updated.Location = *patch.Location
	}

	if renamed && existing.Team.MSTeamID != "" && s.teams != nil {
		if rerr := s.teams.RenameTeam(ctx, existing.Team.MSTeamID, updated.DisplayName); rerr != nil {
			logger.WarnContext(ctx, "failed to rename team", "team_id", existing.Team.MSTeamID, "error", rerr)
		} else {
			updated.Team.Name = updated.DisplayName
		}
	}

	updated.UpdatedAt = s.now()
	facility, err = s.facilities.UpdateFacility(ctx, updated)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// Delete removes a facility that no calendar references.
func (s *FacilityService) Delete(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("FacilityService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "facility_id", id)

	if _, err := s.Get(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to delete facility", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	calendars, err := s.calendars.ListCalendars(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list facility calendars", "error", err)
		return err
	}
	if len(calendars) > 0 {
		err = fmt.Errorf("facility %s is referenced by %d calendars: %w", id, len(calendars), ErrConflict)
		logger.ErrorContext(ctx, "failed to delete facility", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.facilities.DeleteFacility(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete facility", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "facility deleted")
	return nil
}

func validateFacilityInput(input FacilityInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.DisplayName) == "" {
		vErr.add("displayName", "displayName is required")
	}
	if !input.TeamType.Valid() {
		vErr.add("teamType", "teamType must be standard or educationClass")
	}
	return vErr
}
