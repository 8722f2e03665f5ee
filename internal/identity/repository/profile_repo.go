package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/kanbanlab/kanban-client/internal/identity/domain"
)

const usersCollection = "users"

// ProfileRepository persists user profile documents in the users
// collection, keyed by provider UID.
type ProfileRepository struct {
	client *firestore.Client
}

func NewProfileRepository(client *firestore.Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// Load fetches users/{uid}. A missing document is not an error: it
// returns (nil, nil) so the caller can create the profile lazily.
func (r *ProfileRepository) Load(ctx context.Context, uid string) (*domain.Profile, error) {
	snap, err := r.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", uid, err)
	}

	var p domain.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", uid, err)
	}
	p.UID = snap.Ref.ID
	return &p, nil
}

// Create writes the full profile document. No secret material is ever
// stored here.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	if p.UID == "" {
		return fmt.Errorf("profile uid required")
	}

	if _, err := r.client.Collection(usersCollection).Doc(p.UID).Set(ctx, p); err != nil {
		return fmt.Errorf("failed to create profile %s: %w", p.UID, err)
	}
	return nil
}

// TouchLastLogin merge-upserts the lastLogin field, leaving every
// other profile field untouched.
func (r *ProfileRepository) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	data := map[string]interface{}{
		"lastLogin": at,
	}

	if _, err := r.client.Collection(usersCollection).Doc(uid).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to update lastLogin for %s: %w", uid, err)
	}
	return nil
}
