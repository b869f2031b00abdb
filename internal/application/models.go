package application

import (
	"time"

	"github.com/example/hearing-scheduler/internal/directory"
)

// AccessLevel is the ordinal tier that decides private channel membership.
type AccessLevel int

// IdentityKind distinguishes focus users from recording operators.
type IdentityKind string

const (
	IdentityUser     IdentityKind = "user"
	IdentityRecorder IdentityKind = "recorder"
)

// TeamType is the template a facility team is created from.
type TeamType string

const (
	TeamTypeStandard  TeamType = "standard"
	TeamTypeEducation TeamType = "educationClass"
)

// Valid reports whether the team type is supported.
func (t TeamType) Valid() bool {
	return t == TeamTypeStandard || t == TeamTypeEducation
}

// ProvisioningState tracks a facility's team provisioning.
type ProvisioningState string

const (
	ProvisioningInProgress ProvisioningState = "Provisioning"
	ProvisioningActive     ProvisioningState = "Active"
	ProvisioningFailed     ProvisioningState = "Failed"
)

// EventStatus is the lifecycle state of a hearing event.
type EventStatus string

const (
	EventActive  EventStatus = "Active"
	EventDeleted EventStatus = "Deleted"
)

// TeamChannel is a channel that exists in a facility team.
type TeamChannel struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	MembershipType   directory.MembershipType `json:"membershipType"`
	IsDefaultChannel bool                     `json:"isDefaultChannel"`
	AddRecorderUser  bool                     `json:"addRecorderUser"`
}

// InstalledApp is a companion app installed in a facility team.
type InstalledApp struct {
	ChannelID      string `json:"channelId"`
	AppID          string `json:"appId"`
	InstallationID string `json:"installationId"`
	TabID          string `json:"tabId,omitempty"`
}

// Team is the collaboration team owned by a facility. Only the name changes
// after creation; channels and apps only grow.
type Team struct {
	MSTeamID string         `json:"msTeamId"`
	Name     string         `json:"name"`
	Type     TeamType       `json:"type"`
	Channels []TeamChannel  `json:"channels"`
	Apps     []InstalledApp `json:"apps"`
}

// ChannelByName returns the channel with the given name, ignoring case.
func (t Team) ChannelByName(name string) (TeamChannel, bool) {
	for _, ch := range t.Channels {
		if equalFold(ch.Name, name) {
			return ch, true
		}
	}
	return TeamChannel{}, false
}

// Location describes where a facility is.
type Location struct {
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Facility is a courtroom or hearing venue with its own team.
type Facility struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Location    Location          `json:"location"`
	Team        Team              `json:"team"`
	State       ProvisioningState `json:"provisioningState"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// HoldingCall is a waiting-room meeting attached to a calendar.
type HoldingCall struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	IsExpired bool      `json:"isExpired"`
	MeetingID string    `json:"meetingId"`
	ThreadID  string    `json:"threadId"`
	JoinInfo  string    `json:"joinInfo"`
}

// Calendar groups the hearings of one courtroom schedule. ExternalCalendarID
// is stored lowercased.
type Calendar struct {
	ID                 string        `json:"id"`
	ExternalCalendarID string        `json:"externalCalendarId"`
	FacilityID         string        `json:"facilityId"`
	DepartmentID       string        `json:"departmentId"`
	FocusUsers         []string      `json:"focusUsers"`
	Recorders          []string      `json:"recorders"`
	HoldingCalls       []HoldingCall `json:"holdingCalls"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// ActiveHoldingCall returns the index of the non-expired holding call, or -1.
func (c Calendar) ActiveHoldingCall() int {
	for i, call := range c.HoldingCalls {
		if !call.IsExpired {
			return i
		}
	}
	return -1
}

// Links reports whether the calendar references the email as a focus user
// or recorder.
func (c Calendar) Links(email string) bool {
	return containsEmail(c.FocusUsers, email) || containsEmail(c.Recorders, email)
}

// Event is a scheduled hearing belonging to a calendar.
type Event struct {
	ID          string      `json:"id"`
	CalendarID  string      `json:"calendarId"`
	FacilityID  string      `json:"facilityId"`
	Subject     string      `json:"subject"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	MeetingID   string      `json:"meetingId,omitempty"`
	OrganizerID string      `json:"organizerId,omitempty"`
	Status      EventStatus `json:"status"`
}

// User is a focus user, typically a judge or clerk.
type User struct {
	Email       string      `json:"email"`
	MSAadID     string      `json:"msAadId"`
	DisplayName string      `json:"displayName,omitempty"`
	AccessLevel AccessLevel `json:"accessLevel"`
	Active      bool        `json:"activeFlag"`
}

// Recorder is a recording operator.
type Recorder struct {
	Email       string      `json:"email"`
	MSAadID     string      `json:"msAadId"`
	DisplayName string      `json:"displayName,omitempty"`
	AccessLevel AccessLevel `json:"accessLevel"`
	Active      bool        `json:"activeFlag"`
}

// Department owns calendars.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TenantChannelSetting configures one team channel.
type TenantChannelSetting struct {
	Name             string
	MembershipType   directory.MembershipType
	AccessLevels     []AccessLevel
	AddRecorderUser  bool
	IsDefaultChannel bool
}

// Grants reports whether the access level is listed for the channel.
func (s TenantChannelSetting) Grants(level AccessLevel) bool {
	for _, l := range s.AccessLevels {
		if l == level {
			return true
		}
	}
	return false
}

// CompanionApp is an app installed into every facility team and pinned to
// the meetings channel.
type CompanionApp struct {
	AppID      string
	TabName    string
	ContentURL string
	WebsiteURL string
}

// TenantSettings is the reference data for the tenant.
type TenantSettings struct {
	MeetingsChannel string
	Channels        []TenantChannelSetting
	Apps            []CompanionApp
}

// Identity is a resolved focus user or recorder.
type Identity struct {
	Email       string
	DirectoryID string
	AccessLevel AccessLevel
	Kind        IdentityKind
}

// TeamDetails is the outcome of provisioning a facility team.
type TeamDetails struct {
	Team            Team
	MissingChannels []string
	FailedApps      []string
}

// CalendarInput carries the fields of a new calendar.
type CalendarInput struct {
	ExternalCalendarID string   `json:"externalCalendarId"`
	FacilityID         string   `json:"facilityId"`
	DepartmentID       string   `json:"departmentId"`
	FocusUsers         []string `json:"focusUsers"`
	Recorders          []string `json:"recorders"`
}

// CalendarPatch carries the calendar fields to change. Nil fields are left as is.
type CalendarPatch struct {
	FacilityID   *string   `json:"facilityId"`
	DepartmentID *string   `json:"departmentId"`
	FocusUsers   *[]string `json:"focusUsers"`
	Recorders    *[]string `json:"recorders"`
}

// FacilityInput carries the fields of a new facility.
type FacilityInput struct {
	DisplayName string   `json:"displayName"`
	Location    Location `json:"location"`
	TeamType    TeamType `json:"teamType"`
}

// FacilityPatch carries the facility fields to change.
type FacilityPatch struct {
	DisplayName *string   `json:"displayName"`
	Location    *Location `json:"location"`
}
