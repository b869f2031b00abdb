// Package memory is an in-process collaboration directory. It keeps teams,
// channels, memberships and meetings in maps and supports fault injection so
// reconciliation and provisioning failure paths can be exercised.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/hearing-scheduler/internal/directory"
)

type team struct {
	id       string
	name     string
	members  map[string]bool
	channels []*channel
	apps     map[string]string
}

type channel struct {
	info    directory.Channel
	members map[string]bool
	tabs    []directory.Tab
}

type operation struct {
	teamSpec directory.TeamSpec
	polls    int
	teamID   string
}

type meeting struct {
	organizer string
	external  string
	value     directory.Meeting
}

// Directory is safe for concurrent use.
type Directory struct {
	mu sync.Mutex

	seq        int
	teams      map[string]*team
	operations map[string]*operation
	meetings   map[string]*meeting
	messages   map[string][]string
	emails     map[string]string
	calls      map[string]int

	completeAfter    int
	failOperations   bool
	teamAddErr       error
	channelCreateErr map[string]error
	channelAddErr    map[string]error
	installErr       map[string]error
	tabNotReady      map[string]int
	meetingDeleteErr map[string]error
}

// New returns an empty directory. Team creation completes on the first poll
// unless CompleteAfter says otherwise.
func New() *Directory {
	return &Directory{
		teams:            make(map[string]*team),
		operations:       make(map[string]*operation),
		meetings:         make(map[string]*meeting),
		messages:         make(map[string][]string),
		emails:           make(map[string]string),
		calls:            make(map[string]int),
		completeAfter:    1,
		channelCreateErr: make(map[string]error),
		channelAddErr:    make(map[string]error),
		installErr:       make(map[string]error),
		tabNotReady:      make(map[string]int),
		meetingDeleteErr: make(map[string]error),
	}
}

// RegisterUser associates a directory user id with an email so member
// listings carry it.
func (d *Directory) RegisterUser(userID, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails[userID] = email
}

// CompleteAfter sets how many polls a team operation needs before it
// succeeds. Zero or less means it never completes.
func (d *Directory) CompleteAfter(polls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeAfter = polls
}

// FailTeamOperations makes every team operation report failure.
func (d *Directory) FailTeamOperations() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOperations = true
}

// FailTeamAdd makes AddTeamMembers return err.
func (d *Directory) FailTeamAdd(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teamAddErr = err
}

// FailChannelCreate makes creating the named channel return err.
func (d *Directory) FailChannelCreate(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelCreateErr[strings.ToLower(name)] = err
}

// FailChannelAdd makes adding members to the named channel return err.
func (d *Directory) FailChannelAdd(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelAddErr[strings.ToLower(name)] = err
}

// FailInstall makes installing appID return err.
func (d *Directory) FailInstall(appID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.installErr[appID] = err
}

// ChannelNotReadyFor makes the next n tab creations on the named channel report
// directory.ErrNotReady.
func (d *Directory) ChannelNotReadyFor(channelName string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tabNotReady[strings.ToLower(channelName)] = n
}

// FailMeetingDelete makes deleting meetingID return err.
func (d *Directory) FailMeetingDelete(meetingID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meetingDeleteErr[meetingID] = err
}

// Calls returns how many times the named operation was invoked.
func (d *Directory) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// ResetCalls zeroes the call counters.
func (d *Directory) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = make(map[string]int)
}

// SeedTeam creates a ready team with the given channels, bypassing the
// asynchronous creation flow.
func (d *Directory) SeedTeam(teamID, name string, channels []directory.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &team{id: teamID, name: name, members: make(map[string]bool), apps: make(map[string]string)}
	for _, ch := range channels {
		info := ch
		if info.ID == "" {
			info.ID = d.nextIDLocked("channel")
		}
		t.channels = append(t.channels, &channel{info: info, members: make(map[string]bool)})
	}
	d.teams[teamID] = t
}

// TeamMembers returns the sorted user ids that belong to the team.
func (d *Directory) TeamMembers(teamID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.teams[teamID]
	if !ok {
		return nil
	}
	return sortedKeys(t.members)
}

// ChannelMembers returns the sorted user ids that belong to the named channel.
func (d *Directory) ChannelMembers(teamID, channelName string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.teams[teamID]
	if !ok {
		return nil
	}
	if ch := t.channelByName(channelName); ch != nil {
		return sortedKeys(ch.members)
	}
	return nil
}

// TeamName returns the current display name of the team.
func (d *Directory) TeamName(teamID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.teams[teamID]; ok {
		return t.name
	}
	return ""
}

// Tabs returns the tabs of the named channel.
func (d *Directory) Tabs(teamID, channelName string) []directory.Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.teams[teamID]
	if !ok {
		return nil
	}
	if ch := t.channelByName(channelName); ch != nil {
		return append([]directory.Tab(nil), ch.tabs...)
	}
	return nil
}

// HasMeeting reports whether the meeting still exists.
func (d *Directory) HasMeeting(meetingID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.meetings[meetingID]
	return ok
}

// Messages returns the chat messages posted to a thread.
func (d *Directory) Messages(threadID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages[threadID]...)
}

// CreateTeam starts an asynchronous team creation and returns its operation id.
func (d *Directory) CreateTeam(_ context.Context, spec directory.TeamSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateTeam"]++
	if strings.TrimSpace(spec.DisplayName) == "" {
		return "", fmt.Errorf("memory: team display name is required")
	}
	id := d.nextIDLocked("operation")
	d.operations[id] = &operation{teamSpec: spec}
	return id, nil
}

// GetTeamOperation advances and reports the state of a team operation.
func (d *Directory) GetTeamOperation(_ context.Context, operationID string) (directory.TeamOperation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["GetTeamOperation"]++

	op, ok := d.operations[operationID]
	if !ok {
		return directory.TeamOperation{}, directory.ErrNotFound
	}
	op.polls++
	result := directory.TeamOperation{ID: operationID, Status: directory.OperationInProgress}

	switch {
	case d.failOperations:
		result.Status = directory.OperationFailed
		result.Error = "team creation failed"
	case op.teamID != "":
		result.Status = directory.OperationSucceeded
		result.TeamID = op.teamID
	case d.completeAfter > 0 && op.polls >= d.completeAfter:
		op.teamID = d.nextIDLocked("team")
		d.teams[op.teamID] = &team{
			id:      op.teamID,
			name:    op.teamSpec.DisplayName,
			members: make(map[string]bool),
			apps:    make(map[string]string),
			channels: []*channel{{
				info:    directory.Channel{ID: d.nextIDLocked("channel"), Name: "General", MembershipType: directory.MembershipStandard, IsDefault: true},
				members: make(map[string]bool),
			}},
		}
		result.Status = directory.OperationSucceeded
		result.TeamID = op.teamID
	}
	return result, nil
}

// RenameTeam changes the display name of a team.
func (d *Directory) RenameTeam(_ context.Context, teamID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["RenameTeam"]++
	t, ok := d.teams[teamID]
	if !ok {
		return directory.ErrNotFound
	}
	t.name = name
	return nil
}

// ListTeamMembers lists the memberships of a team.
func (d *Directory) ListTeamMembers(_ context.Context, teamID string) ([]directory.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ListTeamMembers"]++
	t, ok := d.teams[teamID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return d.membersLocked(teamID, t.members), nil
}

// AddTeamMembers adds users to a team in one call. Existing members are left as is.
func (d *Directory) AddTeamMembers(_ context.Context, teamID string, userIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["AddTeamMembers"]++
	if d.teamAddErr != nil {
		return d.teamAddErr
	}
	t, ok := d.teams[teamID]
	if !ok {
		return directory.ErrNotFound
	}
	for _, id := range userIDs {
		t.members[id] = true
	}
	return nil
}

// RemoveTeamMember removes a membership from a team and all of its channels.
func (d *Directory) RemoveTeamMember(_ context.Context, teamID, membershipID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["RemoveTeamMember"]++
	t, ok := d.teams[teamID]
	if !ok {
		return directory.ErrNotFound
	}
	userID, ok := splitMembership(teamID, membershipID)
	if !ok || !t.members[userID] {
		return directory.ErrNotFound
	}
	delete(t.members, userID)
	for _, ch := range t.channels {
		delete(ch.members, userID)
	}
	return nil
}

// ListChannels lists the channels of a team.
func (d *Directory) ListChannels(_ context.Context, teamID string) ([]directory.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ListChannels"]++
	t, ok := d.teams[teamID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	out := make([]directory.Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		out = append(out, ch.info)
	}
	return out, nil
}

// CreateChannel adds a channel to a team.
func (d *Directory) CreateChannel(_ context.Context, teamID string, spec directory.ChannelSpec) (directory.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateChannel"]++
	if err := d.channelCreateErr[strings.ToLower(spec.Name)]; err != nil {
		return directory.Channel{}, err
	}
	t, ok := d.teams[teamID]
	if !ok {
		return directory.Channel{}, directory.ErrNotFound
	}
	if existing := t.channelByName(spec.Name); existing != nil {
		return directory.Channel{}, fmt.Errorf("memory: channel %q already exists", spec.Name)
	}
	ch := &channel{
		info:    directory.Channel{ID: d.nextIDLocked("channel"), Name: spec.Name, MembershipType: spec.MembershipType},
		members: make(map[string]bool),
	}
	t.channels = append(t.channels, ch)
	return ch.info, nil
}

// ListChannelMembers lists the memberships of a channel.
func (d *Directory) ListChannelMembers(_ context.Context, teamID, channelID string) ([]directory.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ListChannelMembers"]++
	ch, err := d.channelLocked(teamID, channelID)
	if err != nil {
		return nil, err
	}
	return d.membersLocked(channelID, ch.members), nil
}

// AddChannelMembers adds users to a channel in one call. Users must already
// belong to the team.
func (d *Directory) AddChannelMembers(_ context.Context, teamID, channelID string, userIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["AddChannelMembers"]++
	ch, err := d.channelLocked(teamID, channelID)
	if err != nil {
		return err
	}
	if err := d.channelAddErr[strings.ToLower(ch.info.Name)]; err != nil {
		return err
	}
	t := d.teams[teamID]
	for _, id := range userIDs {
		if !t.members[id] {
			return fmt.Errorf("memory: user %s is not a member of team %s", id, teamID)
		}
	}
	for _, id := range userIDs {
		ch.members[id] = true
	}
	return nil
}

// RemoveChannelMember removes a membership from a channel.
func (d *Directory) RemoveChannelMember(_ context.Context, teamID, channelID, membershipID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["RemoveChannelMember"]++
	ch, err := d.channelLocked(teamID, channelID)
	if err != nil {
		return err
	}
	userID, ok := splitMembership(channelID, membershipID)
	if !ok || !ch.members[userID] {
		return directory.ErrNotFound
	}
	delete(ch.members, userID)
	return nil
}

// InstallApp installs an app into a team and returns the installation id.
func (d *Directory) InstallApp(_ context.Context, teamID, appID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["InstallApp"]++
	if err := d.installErr[appID]; err != nil {
		return "", err
	}
	t, ok := d.teams[teamID]
	if !ok {
		return "", directory.ErrNotFound
	}
	if existing, ok := t.apps[appID]; ok {
		return existing, nil
	}
	id := d.nextIDLocked("installation")
	t.apps[appID] = id
	return id, nil
}

// CreateChannelTab pins an installed app as a tab on a channel.
func (d *Directory) CreateChannelTab(_ context.Context, teamID, channelID string, spec directory.TabSpec) (directory.Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateChannelTab"]++
	ch, err := d.channelLocked(teamID, channelID)
	if err != nil {
		return directory.Tab{}, err
	}
	key := strings.ToLower(ch.info.Name)
	if d.tabNotReady[key] > 0 {
		d.tabNotReady[key]--
		return directory.Tab{}, directory.ErrNotReady
	}
	if _, ok := d.teams[teamID].apps[spec.AppID]; !ok {
		return directory.Tab{}, fmt.Errorf("memory: app %s is not installed in team %s", spec.AppID, teamID)
	}
	tab := directory.Tab{ID: d.nextIDLocked("tab"), Name: spec.Name}
	ch.tabs = append(ch.tabs, tab)
	return tab, nil
}

// CreateOrGetMeeting returns the meeting previously created for the same
// organizer and external id, or creates one.
func (d *Directory) CreateOrGetMeeting(_ context.Context, req directory.MeetingRequest) (directory.Meeting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateOrGetMeeting"]++
	for _, m := range d.meetings {
		if m.organizer == req.OrganizerID && m.external == req.ExternalID {
			return m.value, nil
		}
	}
	id := d.nextIDLocked("meeting")
	value := directory.Meeting{
		ID:       id,
		ThreadID: "19:" + id + "@thread.v2",
		JoinURL:  "https://meetings.invalid/join/" + id,
		Start:    req.Start,
		End:      req.End,
	}
	d.meetings[id] = &meeting{organizer: req.OrganizerID, external: req.ExternalID, value: value}
	return value, nil
}

// UpdateMeeting changes the times of a meeting.
func (d *Directory) UpdateMeeting(_ context.Context, organizerID, meetingID string, start, end time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["UpdateMeeting"]++
	m, ok := d.meetings[meetingID]
	if !ok || m.organizer != organizerID {
		return directory.ErrNotFound
	}
	m.value.Start = start
	m.value.End = end
	return nil
}

// DeleteMeeting removes a meeting. Deleting an unknown meeting succeeds.
func (d *Directory) DeleteMeeting(_ context.Context, organizerID, meetingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["DeleteMeeting"]++
	if err := d.meetingDeleteErr[meetingID]; err != nil {
		return err
	}
	if m, ok := d.meetings[meetingID]; ok && m.organizer == organizerID {
		delete(d.meetings, meetingID)
	}
	return nil
}

// CreateChatMessage posts a message into a meeting thread.
func (d *Directory) CreateChatMessage(_ context.Context, threadID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateChatMessage"]++
	d.messages[threadID] = append(d.messages[threadID], content)
	return nil
}

func (d *Directory) nextIDLocked(prefix string) string {
	d.seq++
	return fmt.Sprintf("%s-%d", prefix, d.seq)
}

func (d *Directory) channelLocked(teamID, channelID string) (*channel, error) {
	t, ok := d.teams[teamID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	for _, ch := range t.channels {
		if ch.info.ID == channelID {
			return ch, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (d *Directory) membersLocked(scope string, members map[string]bool) []directory.Member {
	out := make([]directory.Member, 0, len(members))
	for _, id := range sortedKeys(members) {
		out = append(out, directory.Member{
			MembershipID: scope + ":" + id,
			UserID:       id,
			Email:        d.emails[id],
		})
	}
	return out
}

func (t *team) channelByName(name string) *channel {
	for _, ch := range t.channels {
		if strings.EqualFold(ch.info.Name, name) {
			return ch
		}
	}
	return nil
}

func splitMembership(scope, membershipID string) (string, bool) {
	prefix := scope + ":"
	if !strings.HasPrefix(membershipID, prefix) {
		return "", false
	}
	return strings.TrimPrefix(membershipID, prefix), true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
