package application

import (
	"reflect"
	"testing"

	"github.com/example/hearing-scheduler/internal/directory"
)

func tenantChannels() []TenantChannelSetting {
	return []TenantChannelSetting{
		{Name: "General", MembershipType: directory.MembershipStandard, AccessLevels: []AccessLevel{1, 2, 3}, IsDefaultChannel: true},
		{Name: "Meetings", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{1, 2}, AddRecorderUser: true},
		{Name: "Evidence", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{2}},
		{Name: "Announcements", MembershipType: directory.MembershipStandard, AccessLevels: []AccessLevel{1, 2}},
		{Name: "Chambers", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{3}},
	}
}

func TestChannelsFor(t *testing.T) {
	t.Parallel()

	settings := tenantChannels()
	cases := []struct {
		level AccessLevel
		want  []string
	}{
		{1, []string{"Meetings"}},
		{2, []string{"Evidence", "Meetings"}},
		{3, []string{"Chambers"}},
		{9, []string{}},
	}
	for _, tc := range cases {
		got := ChannelsFor(tc.level, settings)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ChannelsFor(%d) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestChannelsFor_IsMonotonicInGrants(t *testing.T) {
	t.Parallel()

	settings := tenantChannels()
	for _, s := range settings {
		if !isManaged(s) {
			continue
		}
		for _, level := range s.AccessLevels {
			got := ChannelsFor(level, settings)
			found := false
			for _, name := range got {
				if name == s.Name {
					found = true
				}
			}
			if !found {
				t.Fatalf("level %d is granted %s but ChannelsFor returned %v", level, s.Name, got)
			}
			if again := ChannelsFor(level, settings); !reflect.DeepEqual(got, again) {
				t.Fatalf("ChannelsFor(%d) is not deterministic: %v vs %v", level, got, again)
			}
		}
	}
}

func TestChannelsFor_ExcludesDefaultChannels(t *testing.T) {
	t.Parallel()

	settings := []TenantChannelSetting{
		{Name: "general", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{1}},
		{Name: "Lobby", MembershipType: directory.MembershipPrivate, AccessLevels: []AccessLevel{1}, IsDefaultChannel: true},
	}
	if got := ChannelsFor(1, settings); len(got) != 0 {
		t.Fatalf("expected no managed channels, got %v", got)
	}
}

func TestRecorderChannelsFor(t *testing.T) {
	t.Parallel()

	settings := tenantChannels()
	if got := RecorderChannelsFor(3, settings); !reflect.DeepEqual(got, []string{"Chambers", "Meetings"}) {
		t.Fatalf("unexpected recorder channels: %v", got)
	}
	if got := ManagedChannels(settings); !reflect.DeepEqual(got, []string{"Chambers", "Evidence", "Meetings"}) {
		t.Fatalf("unexpected managed channels: %v", got)
	}
}

func TestEmailSetHelpers(t *testing.T) {
	t.Parallel()

	got := normalizeEmails([]string{" A@Example.com", "a@example.com", "", "b@example.com"})
	if !reflect.DeepEqual(got, []string{"a@example.com", "b@example.com"}) {
		t.Fatalf("unexpected normalized emails: %v", got)
	}
	if d := difference([]string{"a", "b", "c"}, []string{"B"}); !reflect.DeepEqual(d, []string{"a", "c"}) {
		t.Fatalf("unexpected difference: %v", d)
	}
	if i := intersection([]string{"a", "b"}, []string{"b", "c"}); !reflect.DeepEqual(i, []string{"b"}) {
		t.Fatalf("unexpected intersection: %v", i)
	}
}
