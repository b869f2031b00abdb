package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/example/hearing-scheduler/internal/directory"
)

// CalendarLister reads the calendars linked to a facility.
type CalendarLister interface {
	ListCalendars(ctx context.Context, facilityID string) ([]Calendar, error)
}

// identityLookup resolves emails to identities without failing on unknown ones.
type identityLookup interface {
	Lookup(ctx context.Context, emails []string) []Identity
}

// TeamMembershipReconciler keeps facility team and private channel
// membership in line with the calendars that link identities to the facility.
// Directory failures are logged and never returned.
type TeamMembershipReconciler struct {
	directory  TeamDirectory
	calendars  CalendarLister
	identities identityLookup
	channels   []TenantChannelSetting
	logger     *slog.Logger
}

// NewTeamMembershipReconciler constructs a reconciler.
func NewTeamMembershipReconciler(dir TeamDirectory, calendars CalendarLister, identities identityLookup, channels []TenantChannelSetting, logger *slog.Logger) *TeamMembershipReconciler {
	return &TeamMembershipReconciler{
		directory:  dir,
		calendars:  calendars,
		identities: identities,
		channels:   channels,
		logger:     defaultLogger(logger),
	}
}

func (r *TeamMembershipReconciler) loggerWith(ctx context.Context, operation string, facility Facility) *slog.Logger {
	return serviceLogger(ctx, r.logger, "TeamMembershipReconciler", operation,
		"facility_id", facility.ID,
		"team_id", facility.Team.MSTeamID,
	)
}

// AssignToTeamAndChannels adds identities to the facility team with one
// listing and one bulk add, then adds each eligible subset to its private
// channels with one bulk add per channel.
func (r *TeamMembershipReconciler) AssignToTeamAndChannels(ctx context.Context, identities []Identity, facility Facility) {
	logger := r.loggerWith(ctx, "AssignToTeamAndChannels", facility)
	teamID := facility.Team.MSTeamID
	if teamID == "" {
		logger.WarnContext(ctx, "facility has no team; skipping assignment")
		return
	}

	identities = withDirectoryIDs(ctx, logger, identities)
	if len(identities) == 0 {
		return
	}

	var failures *multierror.Error

	members, err := r.directory.ListTeamMembers(ctx, teamID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list team members; adding all identities", "error", err)
		failures = multierror.Append(failures, err)
	}
	toAdd := make([]string, 0, len(identities))
	seen := make(map[string]bool, len(identities))
	for _, identity := range identities {
		if seen[identity.DirectoryID] || hasMember(members, identity) {
			continue
		}
		seen[identity.DirectoryID] = true
		toAdd = append(toAdd, identity.DirectoryID)
	}
	if len(toAdd) > 0 {
		if err := r.directory.AddTeamMembers(ctx, teamID, toAdd); err != nil {
			logger.WarnContext(ctx, "failed to add team members", "error", err, "count", len(toAdd))
			failures = multierror.Append(failures, err)
		}
	}

	channels := r.resolveChannels(ctx, logger, facility)
	for _, name := range ManagedChannels(r.channels) {
		eligible := make([]Identity, 0, len(identities))
		for _, identity := range identities {
			if containsName(channelsForIdentity(identity, r.channels), name) {
				eligible = append(eligible, identity)
			}
		}
		if len(eligible) == 0 {
			continue
		}
		channel, ok := findChannel(channels, name)
		if !ok {
			logger.WarnContext(ctx, "configured channel missing from team", "channel", name)
			continue
		}
		if err := r.addToChannel(ctx, teamID, channel, eligible); err != nil {
			logger.WarnContext(ctx, "failed to add channel members", "channel", name, "error", err)
			failures = multierror.Append(failures, fmt.Errorf("channel %s: %w", name, err))
		}
	}

	if failures != nil {
		logger.WarnContext(ctx, "assignment finished with directory failures", "failures", len(failures.Errors))
		return
	}
	logger.InfoContext(ctx, "identities assigned", "count", len(identities))
}

func (r *TeamMembershipReconciler) addToChannel(ctx context.Context, teamID string, channel directory.Channel, eligible []Identity) error {
	members, err := r.directory.ListChannelMembers(ctx, teamID, channel.ID)
	if err != nil {
		members = nil
	}
	ids := make([]string, 0, len(eligible))
	seen := make(map[string]bool, len(eligible))
	for _, identity := range eligible {
		if seen[identity.DirectoryID] || hasMember(members, identity) {
			continue
		}
		seen[identity.DirectoryID] = true
		ids = append(ids, identity.DirectoryID)
	}
	if len(ids) == 0 {
		return nil
	}
	return r.directory.AddChannelMembers(ctx, teamID, channel.ID, ids)
}

// UnassignFromTeamAndChannels removes identities that no calendar other than
// excludingCalendarID links to the facility. Removal covers every configured
// private channel and then the team. Members already gone are skipped.
func (r *TeamMembershipReconciler) UnassignFromTeamAndChannels(ctx context.Context, emails []string, facility Facility, excludingCalendarID string) {
	logger := r.loggerWith(ctx, "UnassignFromTeamAndChannels", facility).With("excluding_calendar_id", excludingCalendarID)
	teamID := facility.Team.MSTeamID
	emails = normalizeEmails(emails)
	if teamID == "" || len(emails) == 0 {
		return
	}

	calendars, err := r.calendars.ListCalendars(ctx, facility.ID)
	if err != nil {
		logger.WarnContext(ctx, "failed to load facility calendars; skipping removal", "error", err)
		return
	}

	candidates := make([]string, 0, len(emails))
	for _, email := range emails {
		if stillLinked(calendars, email, excludingCalendarID) {
			logger.DebugContext(ctx, "identity still linked; keeping membership", "email", email)
			continue
		}
		candidates = append(candidates, email)
	}
	if len(candidates) == 0 {
		return
	}

	identities := r.identities.Lookup(ctx, candidates)
	var failures *multierror.Error

	channels := r.resolveChannels(ctx, logger, facility)
	for _, name := range ManagedChannels(r.channels) {
		channel, ok := findChannel(channels, name)
		if !ok {
			continue
		}
		members, err := r.directory.ListChannelMembers(ctx, teamID, channel.ID)
		if err != nil {
			if !errors.Is(err, directory.ErrNotFound) {
				logger.WarnContext(ctx, "failed to list channel members", "channel", name, "error", err)
				failures = multierror.Append(failures, err)
			}
			continue
		}
		for _, identity := range identities {
			member, ok := findMember(members, identity)
			if !ok {
				continue
			}
			if err := r.directory.RemoveChannelMember(ctx, teamID, channel.ID, member.MembershipID); err != nil && !errors.Is(err, directory.ErrNotFound) {
				logger.WarnContext(ctx, "failed to remove channel member", "channel", name, "email", identity.Email, "error", err)
				failures = multierror.Append(failures, err)
			}
		}
	}

	members, err := r.directory.ListTeamMembers(ctx, teamID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list team members", "error", err)
		return
	}
	for _, identity := range identities {
		member, ok := findMember(members, identity)
		if !ok {
			continue
		}
		if err := r.directory.RemoveTeamMember(ctx, teamID, member.MembershipID); err != nil && !errors.Is(err, directory.ErrNotFound) {
			logger.WarnContext(ctx, "failed to remove team member", "email", identity.Email, "error", err)
			failures = multierror.Append(failures, err)
		}
	}

	if failures != nil {
		logger.WarnContext(ctx, "removal finished with directory failures", "failures", len(failures.Errors))
		return
	}
	logger.InfoContext(ctx, "identities unassigned", "count", len(identities))
}

// resolveChannels lists the team's channels, falling back to the channels
// recorded on the facility when the listing fails.
func (r *TeamMembershipReconciler) resolveChannels(ctx context.Context, logger *slog.Logger, facility Facility) []directory.Channel {
	channels, err := r.directory.ListChannels(ctx, facility.Team.MSTeamID)
	if err == nil {
		return channels
	}
	logger.WarnContext(ctx, "failed to list team channels; using recorded channels", "error", err)
	recorded := make([]directory.Channel, 0, len(facility.Team.Channels))
	for _, ch := range facility.Team.Channels {
		recorded = append(recorded, directory.Channel{ID: ch.ID, Name: ch.Name, MembershipType: ch.MembershipType, IsDefault: ch.IsDefaultChannel})
	}
	return recorded
}

func stillLinked(calendars []Calendar, email, excludingCalendarID string) bool {
	for _, cal := range calendars {
		if cal.ID == excludingCalendarID {
			continue
		}
		if cal.Links(email) {
			return true
		}
	}
	return false
}

func withDirectoryIDs(ctx context.Context, logger *slog.Logger, identities []Identity) []Identity {
	out := make([]Identity, 0, len(identities))
	for _, identity := range identities {
		if identity.DirectoryID == "" {
			logger.WarnContext(ctx, "identity has no directory id", "email", identity.Email)
			continue
		}
		out = append(out, identity)
	}
	return out
}

func hasMember(members []directory.Member, identity Identity) bool {
	_, ok := findMember(members, identity)
	return ok
}

func findMember(members []directory.Member, identity Identity) (directory.Member, bool) {
	for _, m := range members {
		if memberMatches(m, identity) {
			return m, true
		}
	}
	return directory.Member{}, false
}

func findChannel(channels []directory.Channel, name string) (directory.Channel, bool) {
	for _, ch := range channels {
		if equalFold(ch.Name, name) {
			return ch, true
		}
	}
	return directory.Channel{}, false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if equalFold(n, name) {
			return true
		}
	}
	return false
}
