package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/hearing-scheduler/internal/persistence"
)

// UserRepository loads focus users by email.
type UserRepository interface {
	GetUser(ctx context.Context, email string) (User, error)
}

// RecorderRepository loads recording operators by email.
type RecorderRepository interface {
	GetRecorder(ctx context.Context, email string) (Recorder, error)
}

// IdentityResolver turns calendar email lists into directory identities.
type IdentityResolver struct {
	users     UserRepository
	recorders RecorderRepository
	logger    *slog.Logger
}

// NewIdentityResolver constructs a resolver over the user and recorder stores.
func NewIdentityResolver(users UserRepository, recorders RecorderRepository, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{users: users, recorders: recorders, logger: defaultLogger(logger)}
}

// Recorders resolves every email to an active recorder. The first missing or
// inactive recorder fails the whole call with a NotFoundError.
func (r *IdentityResolver) Recorders(ctx context.Context, emails []string) ([]Identity, error) {
	emails = normalizeEmails(emails)
	out := make([]Identity, 0, len(emails))
	for _, email := range emails {
		rec, err := r.recorders.GetRecorder(ctx, email)
		if err != nil {
			if isNotFound(err) {
				return nil, notFound("recorder", email)
			}
			return nil, fmt.Errorf("load recorder %s: %w", email, err)
		}
		if !rec.Active {
			return nil, notFound("recorder", email)
		}
		out = append(out, Identity{Email: email, DirectoryID: rec.MSAadID, AccessLevel: rec.AccessLevel, Kind: IdentityRecorder})
	}
	return out, nil
}

// FocusUsers resolves every email to a user. Missing users are collected and
// reported together as a ValidationError.
func (r *IdentityResolver) FocusUsers(ctx context.Context, emails []string) ([]Identity, error) {
	emails = normalizeEmails(emails)
	out := make([]Identity, 0, len(emails))
	var missing []string
	for _, email := range emails {
		user, err := r.users.GetUser(ctx, email)
		if err != nil {
			if isNotFound(err) {
				missing = append(missing, email)
				continue
			}
			return nil, fmt.Errorf("load user %s: %w", email, err)
		}
		out = append(out, Identity{Email: email, DirectoryID: user.MSAadID, AccessLevel: user.AccessLevel, Kind: IdentityUser})
	}
	if len(missing) > 0 {
		vErr := &ValidationError{}
		vErr.add("focusUsers", "unknown focus users: "+strings.Join(missing, ", "))
		return nil, vErr
	}
	return out, nil
}

// Lookup resolves emails for removal. Unknown emails are returned with only
// the email set so callers can still match directory members by address.
func (r *IdentityResolver) Lookup(ctx context.Context, emails []string) []Identity {
	emails = normalizeEmails(emails)
	out := make([]Identity, 0, len(emails))
	for _, email := range emails {
		identity := Identity{Email: email, Kind: IdentityUser}
		if user, err := r.users.GetUser(ctx, email); err == nil {
			identity.DirectoryID = user.MSAadID
			identity.AccessLevel = user.AccessLevel
		} else if rec, rerr := r.recorders.GetRecorder(ctx, email); rerr == nil {
			identity.DirectoryID = rec.MSAadID
			identity.AccessLevel = rec.AccessLevel
			identity.Kind = IdentityRecorder
		} else if !isNotFound(err) || !isNotFound(rerr) {
			serviceLogger(ctx, r.logger, "IdentityResolver", "Lookup", "email", email).
				WarnContext(ctx, "identity lookup failed", "error", errors.Join(err, rerr))
		}
		out = append(out, identity)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
