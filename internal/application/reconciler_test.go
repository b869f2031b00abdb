package application

import (
	"context"
	"errors"
	"testing"
)

type failingLister struct{}

func (failingLister) ListCalendars(context.Context, string) ([]Calendar, error) {
	return nil, errors.New("store unavailable")
}

func (e *testEnv) identities(emails ...string) []Identity {
	e.t.Helper()
	var out []Identity
	for _, email := range emails {
		if rec, err := e.resolver.Recorders(e.ctx, []string{email}); err == nil {
			out = append(out, rec...)
			continue
		}
		users, err := e.resolver.FocusUsers(e.ctx, []string{email})
		if err != nil {
			e.t.Fatalf("failed to resolve %s: %v", email, err)
		}
		out = append(out, users...)
	}
	return out
}

func TestTeamMembershipReconciler_Assign(t *testing.T) {
	t.Run("lists once and adds in bulk", func(t *testing.T) {
		env := newTestEnv(t)

		env.reconciler.AssignToTeamAndChannels(env.ctx, env.identities("a@example.com", "b@example.com", "r1@example.com"), env.f1)

		if got := env.dir.Calls("ListTeamMembers"); got != 1 {
			t.Fatalf("expected one team listing, got %d", got)
		}
		if got := env.dir.Calls("AddTeamMembers"); got != 1 {
			t.Fatalf("expected one bulk team add, got %d", got)
		}
		if got := env.dir.Calls("AddChannelMembers"); got != 2 {
			t.Fatalf("expected one bulk add per managed channel, got %d", got)
		}
		if got := env.teamMembers(env.f1); len(got) != 3 {
			t.Fatalf("expected three team members, got %v", got)
		}
	})

	t.Run("skips identities already present", func(t *testing.T) {
		env := newTestEnv(t)
		ids := env.identities("a@example.com")
		env.reconciler.AssignToTeamAndChannels(env.ctx, ids, env.f1)
		env.dir.ResetCalls()

		env.reconciler.AssignToTeamAndChannels(env.ctx, ids, env.f1)

		if env.dir.Calls("AddTeamMembers") != 0 || env.dir.Calls("AddChannelMembers") != 0 {
			t.Fatalf("expected no adds for existing members")
		}
	})

	t.Run("continues past a failing channel", func(t *testing.T) {
		env := newTestEnv(t)
		env.dir.FailChannelAdd("Meetings", errors.New("throttled"))

		env.reconciler.AssignToTeamAndChannels(env.ctx, env.identities("a@example.com"), env.f1)

		if !contains(env.channelMembers(env.f1, "Evidence"), "aad-a") {
			t.Fatalf("expected Evidence populated despite Meetings failure")
		}
		if contains(env.channelMembers(env.f1, "Meetings"), "aad-a") {
			t.Fatalf("Meetings add was expected to fail")
		}
	})

	t.Run("still attempts channels when the team add fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.dir.FailTeamAdd(errors.New("forbidden"))

		env.reconciler.AssignToTeamAndChannels(env.ctx, env.identities("a@example.com"), env.f1)

		if len(env.teamMembers(env.f1)) != 0 {
			t.Fatalf("expected no team members")
		}
		if got := env.dir.Calls("AddChannelMembers"); got != 2 {
			t.Fatalf("expected one add per eligible channel, got %d", got)
		}
		if contains(env.channelMembers(env.f1, "Meetings"), "aad-a") || contains(env.channelMembers(env.f1, "Evidence"), "aad-a") {
			t.Fatalf("channel adds must fail for a non-member")
		}
	})

	t.Run("ignores identities without a directory id", func(t *testing.T) {
		env := newTestEnv(t)

		env.reconciler.AssignToTeamAndChannels(env.ctx, []Identity{{Email: "nobody@example.com"}}, env.f1)

		if env.dir.Calls("ListTeamMembers") != 0 {
			t.Fatalf("expected no directory calls")
		}
	})
}

func TestTeamMembershipReconciler_Unassign(t *testing.T) {
	t.Run("removes from channels and team", func(t *testing.T) {
		env := newTestEnv(t)
		env.reconciler.AssignToTeamAndChannels(env.ctx, env.identities("a@example.com"), env.f1)

		env.reconciler.UnassignFromTeamAndChannels(env.ctx, []string{"A@example.com"}, env.f1, "")

		if contains(env.teamMembers(env.f1), "aad-a") {
			t.Fatalf("expected a removed from team")
		}
		if contains(env.channelMembers(env.f1, "Evidence"), "aad-a") || contains(env.channelMembers(env.f1, "Meetings"), "aad-a") {
			t.Fatalf("expected a removed from channels")
		}
	})

	t.Run("skips removal when calendars cannot be listed", func(t *testing.T) {
		env := newTestEnv(t)
		env.reconciler.AssignToTeamAndChannels(env.ctx, env.identities("a@example.com"), env.f1)
		reconciler := NewTeamMembershipReconciler(env.dir, failingLister{}, env.resolver, env.tenant.Channels, env.logger)

		reconciler.UnassignFromTeamAndChannels(env.ctx, []string{"a@example.com"}, env.f1, "")

		if !contains(env.teamMembers(env.f1), "aad-a") {
			t.Fatalf("expected membership preserved")
		}
		if env.dir.Calls("RemoveTeamMember") != 0 {
			t.Fatalf("expected no removals")
		}
	})

	t.Run("tolerates members already gone", func(t *testing.T) {
		env := newTestEnv(t)

		env.reconciler.UnassignFromTeamAndChannels(env.ctx, []string{"a@example.com"}, env.f1, "")

		if env.dir.Calls("RemoveTeamMember") != 0 {
			t.Fatalf("expected nothing to remove")
		}
	})
}
