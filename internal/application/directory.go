package application

import (
	"context"
	"time"

	"github.com/example/hearing-scheduler/internal/directory"
)

// TeamDirectory is the membership surface of the collaboration directory.
type TeamDirectory interface {
	ListTeamMembers(ctx context.Context, teamID string) ([]directory.Member, error)
	AddTeamMembers(ctx context.Context, teamID string, userIDs []string) error
	RemoveTeamMember(ctx context.Context, teamID, membershipID string) error
	ListChannels(ctx context.Context, teamID string) ([]directory.Channel, error)
	ListChannelMembers(ctx context.Context, teamID, channelID string) ([]directory.Member, error)
	AddChannelMembers(ctx context.Context, teamID, channelID string, userIDs []string) error
	RemoveChannelMember(ctx context.Context, teamID, channelID, membershipID string) error
}

// ProvisioningDirectory creates teams and their channels, apps and tabs.
type ProvisioningDirectory interface {
	CreateTeam(ctx context.Context, spec directory.TeamSpec) (string, error)
	GetTeamOperation(ctx context.Context, operationID string) (directory.TeamOperation, error)
	RenameTeam(ctx context.Context, teamID, name string) error
	ListChannels(ctx context.Context, teamID string) ([]directory.Channel, error)
	CreateChannel(ctx context.Context, teamID string, spec directory.ChannelSpec) (directory.Channel, error)
	InstallApp(ctx context.Context, teamID, appID string) (string, error)
	CreateChannelTab(ctx context.Context, teamID, channelID string, spec directory.TabSpec) (directory.Tab, error)
}

// MeetingDirectory manages online meetings and their chats.
type MeetingDirectory interface {
	CreateOrGetMeeting(ctx context.Context, req directory.MeetingRequest) (directory.Meeting, error)
	UpdateMeeting(ctx context.Context, organizerID, meetingID string, start, end time.Time) error
	DeleteMeeting(ctx context.Context, organizerID, meetingID string) error
	CreateChatMessage(ctx context.Context, threadID, content string) error
}

// Directory is the full collaboration directory consumed by the services.
type Directory interface {
	TeamDirectory
	ProvisioningDirectory
	MeetingDirectory
}

func memberMatches(m directory.Member, identity Identity) bool {
	if identity.DirectoryID != "" && m.UserID == identity.DirectoryID {
		return true
	}
	return m.Email != "" && equalFold(m.Email, identity.Email)
}
