package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/example/hearing-scheduler/internal/directory"
)

// PollingOptions bounds the fixed-interval polling loops of the provisioner.
type PollingOptions struct {
	TeamInterval time.Duration
	TeamAttempts int
	TabInterval  time.Duration
	TabAttempts  int
}

// DefaultPollingOptions polls team creation for a minute and tab creation
// for thirty seconds.
func DefaultPollingOptions() PollingOptions {
	return PollingOptions{
		TeamInterval: 5 * time.Second,
		TeamAttempts: 12,
		TabInterval:  5 * time.Second,
		TabAttempts:  6,
	}
}

var errOperationPending = errors.New("team operation still running")

// FacilityTeamProvisioner creates a facility team with its channels, apps and tabs.
type FacilityTeamProvisioner struct {
	directory ProvisioningDirectory
	tenant    TenantSettings
	polling   PollingOptions
	logger    *slog.Logger
}

// NewFacilityTeamProvisioner constructs a provisioner for the tenant settings.
func NewFacilityTeamProvisioner(dir ProvisioningDirectory, tenant TenantSettings, polling PollingOptions, logger *slog.Logger) *FacilityTeamProvisioner {
	defaults := DefaultPollingOptions()
	if polling.TeamInterval <= 0 {
		polling.TeamInterval = defaults.TeamInterval
	}
	if polling.TeamAttempts <= 0 {
		polling.TeamAttempts = defaults.TeamAttempts
	}
	if polling.TabInterval <= 0 {
		polling.TabInterval = defaults.TabInterval
	}
	if polling.TabAttempts <= 0 {
		polling.TabAttempts = defaults.TabAttempts
	}
	return &FacilityTeamProvisioner{directory: dir, tenant: tenant, polling: polling, logger: defaultLogger(logger)}
}

func fixedPolicy(ctx context.Context, interval time.Duration, attempts int) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)
}

// CreateTeam provisions a team. Team creation and its polling are fatal;
// channel, app and tab failures are logged and reported on the result.
func (p *FacilityTeamProvisioner) CreateTeam(ctx context.Context, displayName string, teamType TeamType) (details TeamDetails, err error) {
	logger := serviceLogger(ctx, p.logger, "FacilityTeamProvisioner", "CreateTeam", "display_name", displayName)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to provision team", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "team provisioned",
			"team_id", details.Team.MSTeamID,
			"channels", len(details.Team.Channels),
			"missing_channels", len(details.MissingChannels),
			"failed_apps", len(details.FailedApps),
		)
	}()

	if teamType == "" {
		teamType = TeamTypeStandard
	}

	var teamID string
	teamID, err = p.createAndAwaitTeam(ctx, displayName, teamType)
	if err != nil {
		return
	}
	logger = logger.With("team_id", teamID)

	details.Team = Team{MSTeamID: teamID, Name: displayName, Type: teamType, Channels: []TeamChannel{}, Apps: []InstalledApp{}}
	details.Team.Channels, details.MissingChannels = p.createChannels(ctx, logger, teamID)
	if len(details.MissingChannels) > 0 {
		logger.WarnContext(ctx, "team provisioned without some channels", "missing", strings.Join(details.MissingChannels, ", "))
	}

	meetings, ok := details.Team.ChannelByName(p.tenant.MeetingsChannel)
	if !ok {
		if len(p.tenant.Apps) > 0 {
			logger.WarnContext(ctx, "meetings channel missing; skipping companion apps", "channel", p.tenant.MeetingsChannel)
		}
		return
	}
	details.Team.Apps, details.FailedApps = p.installApps(ctx, logger, teamID, meetings)
	return
}

func (p *FacilityTeamProvisioner) createAndAwaitTeam(ctx context.Context, displayName string, teamType TeamType) (string, error) {
	operationID, err := p.directory.CreateTeam(ctx, directory.TeamSpec{
		DisplayName: displayName,
		Description: displayName,
		Template:    string(teamType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create team: %v", ErrProvisioningFailed, err)
	}

	var teamID string
	poll := func() error {
		op, err := p.directory.GetTeamOperation(ctx, operationID)
		if err != nil {
			return err
		}
		switch op.Status {
		case directory.OperationSucceeded:
			if op.TeamID == "" {
				return backoff.Permanent(fmt.Errorf("%w: operation succeeded without a team id", ErrProvisioningFailed))
			}
			teamID = op.TeamID
			return nil
		case directory.OperationFailed:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrProvisioningFailed, op.Error))
		default:
			return errOperationPending
		}
	}

	if err := backoff.Retry(poll, fixedPolicy(ctx, p.polling.TeamInterval, p.polling.TeamAttempts)); err != nil {
		if errors.Is(err, ErrProvisioningFailed) {
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w after %d polls: %v", ErrProvisioningTimeout, p.polling.TeamAttempts, err)
	}
	return teamID, nil
}

// createChannels creates one channel per setting. Channels the team already
// has, such as the default channel, are recorded without being created.
func (p *FacilityTeamProvisioner) createChannels(ctx context.Context, logger *slog.Logger, teamID string) ([]TeamChannel, []string) {
	existing, err := p.directory.ListChannels(ctx, teamID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list initial channels", "error", err)
	}

	channels := make([]TeamChannel, 0, len(p.tenant.Channels))
	var missing []string
	for _, setting := range p.tenant.Channels {
		channel, found := findChannel(existing, setting.Name)
		if !found {
			if setting.IsDefaultChannel {
				missing = append(missing, setting.Name)
				continue
			}
			membership := setting.MembershipType
			if !membership.Valid() {
				membership = directory.MembershipStandard
			}
			channel, err = p.directory.CreateChannel(ctx, teamID, directory.ChannelSpec{
				Name:           setting.Name,
				Description:    setting.Name,
				MembershipType: membership,
			})
			if err != nil {
				logger.WarnContext(ctx, "failed to create channel", "channel", setting.Name, "error", err)
				missing = append(missing, setting.Name)
				continue
			}
		}
		channels = append(channels, TeamChannel{
			ID:               channel.ID,
			Name:             setting.Name,
			MembershipType:   channel.MembershipType,
			IsDefaultChannel: setting.IsDefaultChannel || channel.IsDefault,
			AddRecorderUser:  setting.AddRecorderUser,
		})
	}
	return channels, missing
}

// installApps installs every companion app and pins it to the meetings
// channel. Each app fails on its own.
func (p *FacilityTeamProvisioner) installApps(ctx context.Context, logger *slog.Logger, teamID string, meetings TeamChannel) ([]InstalledApp, []string) {
	apps := make([]InstalledApp, 0, len(p.tenant.Apps))
	var failed []string
	for _, app := range p.tenant.Apps {
		appLogger := logger.With("app_id", app.AppID, "channel", meetings.Name)

		installationID, err := p.directory.InstallApp(ctx, teamID, app.AppID)
		if err != nil {
			appLogger.WarnContext(ctx, "failed to install app", "error", err)
			failed = append(failed, app.AppID)
			continue
		}
		installed := InstalledApp{ChannelID: meetings.ID, AppID: app.AppID, InstallationID: installationID}

		tab, err := p.createTab(ctx, teamID, meetings.ID, app)
		if err != nil {
			appLogger.WarnContext(ctx, "failed to create channel tab", "error", err)
			failed = append(failed, app.AppID)
		} else {
			installed.TabID = tab.ID
		}
		apps = append(apps, installed)
	}
	if len(failed) > 0 {
		logger.WarnContext(ctx, "companion apps incomplete", "failed_apps", len(failed))
	}
	return apps, failed
}

// createTab retries while the channel reports it is not ready yet.
func (p *FacilityTeamProvisioner) createTab(ctx context.Context, teamID, channelID string, app CompanionApp) (directory.Tab, error) {
	name := app.TabName
	if name == "" {
		name = app.AppID
	}
	spec := directory.TabSpec{
		Name:       name,
		AppID:      app.AppID,
		EntityID:   app.AppID + "-" + channelID,
		ContentURL: app.ContentURL,
		WebsiteURL: app.WebsiteURL,
	}

	var tab directory.Tab
	attempt := func() error {
		created, err := p.directory.CreateChannelTab(ctx, teamID, channelID, spec)
		if err != nil {
			if errors.Is(err, directory.ErrNotReady) {
				return err
			}
			return backoff.Permanent(err)
		}
		tab = created
		return nil
	}
	if err := backoff.Retry(attempt, fixedPolicy(ctx, p.polling.TabInterval, p.polling.TabAttempts)); err != nil {
		if errors.Is(err, directory.ErrNotReady) {
			return directory.Tab{}, fmt.Errorf("channel not ready after %d attempts: %w", p.polling.TabAttempts, err)
		}
		return directory.Tab{}, err
	}
	return tab, nil
}
