package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

// Identity is who the caller is according to their token.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

type ProfileService struct {
	profiles store.ProfileStore
	now      func() time.Time
}

func NewProfileService(profiles store.ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles, now: time.Now}
}

// Save creates or replaces the caller's profile, keeping the original
// creation time.
func (s *ProfileService) Save(ctx context.Context, id Identity, req model.ProfileRequest) (*model.Profile, error) {
	now := s.now().UTC()
	created := now

	existing, err := s.profiles.Get(ctx, id.UserID)
	switch {
	case err == nil:
		created = existing.CreatedAt
	case errors.Is(err, store.ErrProfileNotFound):
	default:
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	p := &model.Profile{
		UserID:      id.UserID,
		Email:       id.Email,
		Username:    id.Username,
		PhoneNumber: req.PhoneNumber,
		Preferences: req.Preferences,
		CreatedAt:   created,
		UpdatedAt:   now,
	}
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}
