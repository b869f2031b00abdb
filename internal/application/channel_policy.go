package application

import (
	"sort"
	"strings"

	"github.com/example/hearing-scheduler/internal/directory"
)

const generalChannelName = "General"

// ChannelsFor returns the private channels an identity with the given access
// level belongs to, sorted by name. Default channels are never managed.
func ChannelsFor(level AccessLevel, settings []TenantChannelSetting) []string {
	return selectChannels(settings, func(s TenantChannelSetting) bool {
		return s.Grants(level)
	})
}

// RecorderChannelsFor returns the channels for a recorder: those granted by
// access level plus every private channel that takes recorders.
func RecorderChannelsFor(level AccessLevel, settings []TenantChannelSetting) []string {
	return selectChannels(settings, func(s TenantChannelSetting) bool {
		return s.Grants(level) || s.AddRecorderUser
	})
}

// ManagedChannels returns every private channel name the policy can select.
func ManagedChannels(settings []TenantChannelSetting) []string {
	return selectChannels(settings, func(TenantChannelSetting) bool { return true })
}

func channelsForIdentity(identity Identity, settings []TenantChannelSetting) []string {
	if identity.Kind == IdentityRecorder {
		return RecorderChannelsFor(identity.AccessLevel, settings)
	}
	return ChannelsFor(identity.AccessLevel, settings)
}

func selectChannels(settings []TenantChannelSetting, include func(TenantChannelSetting) bool) []string {
	seen := make(map[string]bool, len(settings))
	names := make([]string, 0, len(settings))
	for _, s := range settings {
		if !isManaged(s) || !include(s) {
			continue
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, s.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

func isManaged(s TenantChannelSetting) bool {
	if s.IsDefaultChannel || equalFold(s.Name, generalChannelName) {
		return false
	}
	return s.MembershipType == directory.MembershipPrivate
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeEmails lowercases, trims and deduplicates, keeping first-seen order.
func normalizeEmails(emails []string) []string {
	if len(emails) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := normalizeEmail(e)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func containsEmail(list []string, email string) bool {
	n := normalizeEmail(email)
	for _, e := range list {
		if normalizeEmail(e) == n {
			return true
		}
	}
	return false
}

// difference returns the emails in a that are not in b.
func difference(a, b []string) []string {
	out := make([]string, 0)
	for _, e := range a {
		if !containsEmail(b, e) {
			out = append(out, e)
		}
	}
	return out
}

// intersection returns the emails present in both a and b.
func intersection(a, b []string) []string {
	out := make([]string, 0)
	for _, e := range a {
		if containsEmail(b, e) {
			out = append(out, e)
		}
	}
	return out
}
