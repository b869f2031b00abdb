package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hearing-scheduler/internal/directory"
)

func TestTeamOperationCompletesAfterPolls(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.CompleteAfter(3)

	opID, err := d.CreateTeam(ctx, directory.TeamSpec{DisplayName: "Court 1"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		op, err := d.GetTeamOperation(ctx, opID)
		require.NoError(t, err)
		assert.Equal(t, directory.OperationInProgress, op.Status)
	}

	op, err := d.GetTeamOperation(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, directory.OperationSucceeded, op.Status)
	require.NotEmpty(t, op.TeamID)
	assert.Equal(t, "Court 1", d.TeamName(op.TeamID))

	again, err := d.GetTeamOperation(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, op.TeamID, again.TeamID)

	channels, err := d.ListChannels(ctx, op.TeamID)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.True(t, channels[0].IsDefault)
}

func TestTeamOperationNeverCompletes(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.CompleteAfter(0)

	opID, err := d.CreateTeam(ctx, directory.TeamSpec{DisplayName: "Court 1"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		op, err := d.GetTeamOperation(ctx, opID)
		require.NoError(t, err)
		assert.False(t, op.Status.Terminal())
	}
}

func TestMembershipIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.RegisterUser("u1", "u1@example.com")
	d.SeedTeam("team-1", "Court 1", []directory.Channel{
		{ID: "ch-meet", Name: "Meetings", MembershipType: directory.MembershipPrivate},
	})

	require.NoError(t, d.AddTeamMembers(ctx, "team-1", []string{"u1"}))
	require.NoError(t, d.AddTeamMembers(ctx, "team-1", []string{"u1"}))
	require.NoError(t, d.AddChannelMembers(ctx, "team-1", "ch-meet", []string{"u1"}))
	assert.Equal(t, []string{"u1"}, d.TeamMembers("team-1"))
	assert.Equal(t, []string{"u1"}, d.ChannelMembers("team-1", "meetings"))

	members, err := d.ListTeamMembers(ctx, "team-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u1@example.com", members[0].Email)

	require.NoError(t, d.RemoveTeamMember(ctx, "team-1", members[0].MembershipID))
	assert.Empty(t, d.TeamMembers("team-1"))
	assert.Empty(t, d.ChannelMembers("team-1", "Meetings"))
	assert.ErrorIs(t, d.RemoveTeamMember(ctx, "team-1", members[0].MembershipID), directory.ErrNotFound)
}

func TestChannelAddRequiresTeamMembership(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.SeedTeam("team-1", "Court 1", []directory.Channel{{ID: "ch", Name: "Meetings", MembershipType: directory.MembershipPrivate}})

	assert.Error(t, d.AddChannelMembers(ctx, "team-1", "ch", []string{"ghost"}))
	assert.Empty(t, d.ChannelMembers("team-1", "Meetings"))
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	d := New()
	d.SeedTeam("team-1", "Court 1", []directory.Channel{{ID: "ch", Name: "Meetings", MembershipType: directory.MembershipPrivate}})
	require.NoError(t, d.AddTeamMembers(ctx, "team-1", []string{"u1"}))

	d.FailChannelAdd("meetings", boom)
	assert.ErrorIs(t, d.AddChannelMembers(ctx, "team-1", "ch", []string{"u1"}), boom)

	d.FailChannelCreate("Evidence", boom)
	_, err := d.CreateChannel(ctx, "team-1", directory.ChannelSpec{Name: "Evidence", MembershipType: directory.MembershipPrivate})
	assert.ErrorIs(t, err, boom)

	d.FailInstall("app-1", boom)
	_, err = d.InstallApp(ctx, "team-1", "app-1")
	assert.ErrorIs(t, err, boom)

	_, err = d.InstallApp(ctx, "team-1", "app-2")
	require.NoError(t, err)
	d.ChannelNotReadyFor("Meetings", 2)
	spec := directory.TabSpec{Name: "Console", AppID: "app-2"}
	for i := 0; i < 2; i++ {
		_, err = d.CreateChannelTab(ctx, "team-1", "ch", spec)
		assert.ErrorIs(t, err, directory.ErrNotReady)
	}
	tab, err := d.CreateChannelTab(ctx, "team-1", "ch", spec)
	require.NoError(t, err)
	assert.Equal(t, "Console", tab.Name)
	assert.Equal(t, 3, d.Calls("CreateChannelTab"))
}

func TestMeetingsCreateOrGet(t *testing.T) {
	ctx := context.Background()
	d := New()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req := directory.MeetingRequest{OrganizerID: "org", ExternalID: "ext-1", Start: start, End: start.Add(time.Hour)}

	first, err := d.CreateOrGetMeeting(ctx, req)
	require.NoError(t, err)
	second, err := d.CreateOrGetMeeting(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEmpty(t, first.ThreadID)

	later := start.Add(2 * time.Hour)
	require.NoError(t, d.UpdateMeeting(ctx, "org", first.ID, later, later.Add(time.Hour)))
	updated, err := d.CreateOrGetMeeting(ctx, req)
	require.NoError(t, err)
	assert.True(t, updated.Start.Equal(later))

	require.NoError(t, d.DeleteMeeting(ctx, "org", first.ID))
	assert.False(t, d.HasMeeting(first.ID))
	require.NoError(t, d.DeleteMeeting(ctx, "org", first.ID))

	require.NoError(t, d.CreateChatMessage(ctx, first.ThreadID, "hello"))
	assert.Equal(t, []string{"hello"}, d.Messages(first.ThreadID))
}
