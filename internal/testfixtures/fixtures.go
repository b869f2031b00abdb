package testfixtures

import (
	"github.com/example/hearing-scheduler/internal/application"
	"github.com/example/hearing-scheduler/internal/directory"
)

// Seeded reference data.
const (
	FacilityOneID = "facility-1"
	FacilityTwoID = "facility-2"
	DepartmentID  = "dept-civil"

	JudgeEmail            = "judge@example.com"
	ClerkEmail            = "clerk@example.com"
	RecorderEmail         = "recorder@example.com"
	InactiveRecorderEmail = "retired@example.com"

	JudgeDirectoryID    = "aad-judge"
	ClerkDirectoryID    = "aad-clerk"
	RecorderDirectoryID = "aad-recorder"

	OrganizerID = "organizer-1"
)

// Tenant returns a tenant with a default channel, two private channels and a
// companion app pinned to the meetings channel.
func Tenant() application.TenantSettings {
	return application.TenantSettings{
		MeetingsChannel: "Meetings",
		Channels: []application.TenantChannelSetting{
			{Name: "General", MembershipType: directory.MembershipStandard, IsDefaultChannel: true},
			{Name: "Meetings", MembershipType: directory.MembershipPrivate, AccessLevels: []application.AccessLevel{1, 2}, AddRecorderUser: true},
			{Name: "Evidence", MembershipType: directory.MembershipPrivate, AccessLevels: []application.AccessLevel{2}},
		},
		Apps: []application.CompanionApp{
			{AppID: "app-console", TabName: "Hearing Console", ContentURL: "https://console.example/tab"},
		},
	}
}

// Users returns the seeded focus users. The judge holds the higher tier.
func Users() []application.User {
	return []application.User{
		{Email: JudgeEmail, MSAadID: JudgeDirectoryID, DisplayName: "Judge", AccessLevel: 2, Active: true},
		{Email: ClerkEmail, MSAadID: ClerkDirectoryID, DisplayName: "Clerk", AccessLevel: 1, Active: true},
	}
}

// Recorders returns one active and one inactive recorder.
func Recorders() []application.Recorder {
	return []application.Recorder{
		{Email: RecorderEmail, MSAadID: RecorderDirectoryID, DisplayName: "Recorder", AccessLevel: 1, Active: true},
		{Email: InactiveRecorderEmail, MSAadID: "aad-retired", DisplayName: "Retired", AccessLevel: 1, Active: false},
	}
}

// Departments returns the seeded departments.
func Departments() []application.Department {
	return []application.Department{{ID: DepartmentID, Name: "Civil"}}
}

// TeamChannels returns the channels of a ready facility team whose ids are
// derived from facilityID.
func TeamChannels(facilityID string) []application.TeamChannel {
	return []application.TeamChannel{
		{ID: facilityID + "-general", Name: "General", MembershipType: directory.MembershipStandard, IsDefaultChannel: true},
		{ID: facilityID + "-meetings", Name: "Meetings", MembershipType: directory.MembershipPrivate, AddRecorderUser: true},
		{ID: facilityID + "-evidence", Name: "Evidence", MembershipType: directory.MembershipPrivate},
	}
}

// TeamID returns the team id seeded for a facility.
func TeamID(facilityID string) string {
	return "team-" + facilityID
}
