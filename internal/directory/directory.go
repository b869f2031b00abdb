// Package directory describes the collaboration platform entities the
// scheduler manages: teams, channels, members, installed apps, tabs and
// online meetings. Implementations live in the graph and memory subpackages.
package directory

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed team, channel, member or
	// meeting does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrNotReady is returned when a resource exists but cannot be used yet,
	// for example a channel that is still being provisioned.
	ErrNotReady = errors.New("directory: not ready")
)

// MembershipType is the visibility of a channel.
type MembershipType string

const (
	MembershipStandard MembershipType = "standard"
	MembershipPrivate  MembershipType = "private"
)

// Valid reports whether the membership type is one the platform accepts.
func (m MembershipType) Valid() bool {
	return m == MembershipStandard || m == MembershipPrivate
}

// OperationStatus is the state of an asynchronous team operation.
type OperationStatus string

const (
	OperationNotStarted OperationStatus = "notStarted"
	OperationInProgress OperationStatus = "inProgress"
	OperationSucceeded  OperationStatus = "succeeded"
	OperationFailed     OperationStatus = "failed"
)

// Terminal reports whether no further status changes are expected.
func (s OperationStatus) Terminal() bool {
	return s == OperationSucceeded || s == OperationFailed
}

// Member is a team or channel membership.
type Member struct {
	MembershipID string
	UserID       string
	Email        string
	DisplayName  string
}

// Channel is a channel that exists in a team.
type Channel struct {
	ID             string
	Name           string
	MembershipType MembershipType
	IsDefault      bool
}

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	Name           string
	Description    string
	MembershipType MembershipType
}

// TeamSpec describes a team to create.
type TeamSpec struct {
	DisplayName string
	Description string
	Template    string
	Visibility  string
}

// TeamOperation is the polled state of an asynchronous team creation.
type TeamOperation struct {
	ID     string
	Status OperationStatus
	TeamID string
	Error  string
}

// TabSpec describes a channel tab backed by an installed app.
type TabSpec struct {
	Name       string
	AppID      string
	EntityID   string
	ContentURL string
	WebsiteURL string
}

// Tab is a created channel tab.
type Tab struct {
	ID   string
	Name string
}

// MeetingRequest carries the createOrGet parameters for an online meeting.
// ExternalID makes the call idempotent per organizer.
type MeetingRequest struct {
	OrganizerID string
	ExternalID  string
	Start       time.Time
	End         time.Time
	Subject     string
}

// Meeting is an online meeting as returned by the platform.
type Meeting struct {
	ID       string
	ThreadID string
	JoinURL  string
	Start    time.Time
	End      time.Time
}
