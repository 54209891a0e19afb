// Package session keeps the server-side half of a login. A bearer token only
// authenticates while its session is still stored; logout revokes it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ideabox/internal/auth"
)

var ErrNotFound = errors.New("session not found or expired")

// Session is the explicit per-request identity handed to handlers.
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"userId"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, id string) (Session, error)
	Revoke(ctx context.Context, id string) error
	// RevokeUser ends every session of the user, e.g. after account deletion.
	RevokeUser(ctx context.Context, userID uint) error
}

type Manager struct {
	issuer *auth.Issuer
	store  Store
}

func NewManager(issuer *auth.Issuer, store Store) *Manager {
	return &Manager{issuer: issuer, store: store}
}

// Start issues a token and persists the session it names.
func (m *Manager) Start(ctx context.Context, userID uint, isAdmin bool) (Session, string, error) {
	token, claims, err := m.issuer.Issue(userID, isAdmin)
	if err != nil {
		return Session{}, "", err
	}
	s := Session{
		ID:        claims.ID,
		UserID:    userID,
		IsAdmin:   isAdmin,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, "", fmt.Errorf("save session: %w", err)
	}
	return s, token, nil
}

// Resume verifies the token and loads its session. A valid signature whose
// session was revoked is rejected.
func (m *Manager) Resume(ctx context.Context, token string) (Session, error) {
	claims, err := m.issuer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	s, err := m.store.Load(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != claims.UserID {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Manager) End(ctx context.Context, s Session) error {
	return m.store.Revoke(ctx, s.ID)
}

func (m *Manager) EndAll(ctx context.Context, userID uint) error {
	return m.store.RevokeUser(ctx, userID)
}
