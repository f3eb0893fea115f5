// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package users manages reviewer accounts. An administrator issues invite
// links; anyone holding a link can request credentials for an email
// address, which creates the reviewer or resets their password.
package users

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Documents is the document-store surface the service needs.
type Documents interface {
	docstore.Session
	Batch(ctx context.Context, fn func(tx *docstore.Tx) error) error
}

// Credentials are issued once, in plaintext, by RequestCredentials.
type Credentials struct {
	UserID   string
	Username string
	Password string
}

// Service issues invite links and credentials and authenticates reviewers.
type Service struct {
	docs Documents
	cost int
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCost sets the bcrypt cost.
func WithCost(cost int) Option { return func(s *Service) { s.cost = cost } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a service.
func NewService(docs Documents, opts ...Option) *Service {
	s := &Service{docs: docs, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInviteLink stores a fresh invite link.
func (s *Service) NewInviteLink(ctx context.Context) (types.InviteLink, error) {
	raw, err := randomBytes(32)
	if err != nil {
		return types.InviteLink{}, err
	}
	link := types.InviteLink{Token: base64.RawURLEncoding.EncodeToString(raw), CreatedAt: s.now().UTC()}
	id, err := s.docs.Insert(ctx, link)
	if err != nil {
		return types.InviteLink{}, fmt.Errorf("storing invite link: %w", err)
	}
	link.ID = id
	return link, nil
}

// ValidInviteLink returns the invite link for token.
func (s *Service) ValidInviteLink(ctx context.Context, token string) (types.InviteLink, error) {
	return findInvite(ctx, s.docs, token)
}

func findInvite(ctx context.Context, docs docstore.Session, token string) (types.InviteLink, error) {
	var link types.InviteLink
	if token == "" {
		return link, apperr.New(apperr.KindValidation, "invalid or expired invite link")
	}
	id, err := docs.FindOne(ctx, types.TypeInviteLink, docstore.Template{"token": token}, &link)
	if errors.Is(err, docstore.ErrNotFound) {
		return link, apperr.New(apperr.KindValidation, "invalid or expired invite link")
	}
	if err != nil {
		return link, fmt.Errorf("loading invite link: %w", err)
	}
	link.ID = id
	return link, nil
}

// RequestCredentials records a credentials request for email through the
// invite link token. A new reviewer gets a random username; an existing
// one keeps theirs and has the password reset. The returned password is
// never stored.
func (s *Service) RequestCredentials(ctx context.Context, token, email string) (Credentials, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return Credentials{}, apperr.Wrap(apperr.KindValidation, err, "invalid email address %q", email)
	}
	email = addr.Address

	rawPassword, err := randomBytes(32)
	if err != nil {
		return Credentials{}, err
	}
	password := hex.EncodeToString(rawPassword)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Credentials{}, fmt.Errorf("hashing password: %w", err)
	}

	var creds Credentials
	err = s.docs.Batch(ctx, func(tx *docstore.Tx) error {
		link, err := findInvite(ctx, tx, token)
		if err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, types.CredentialsRequest{
			EmailAddress: email,
			InviteLink:   link.ID,
			CreatedAt:    s.now().UTC(),
		}); err != nil {
			return fmt.Errorf("recording credentials request: %w", err)
		}

		var user types.User
		id, err := tx.FindOne(ctx, types.TypeUser, docstore.Template{"email_address": email}, &user)
		switch {
		case err == nil:
			user.HashedPassword = string(hash)
			if err := tx.Replace(ctx, id, user); err != nil {
				return fmt.Errorf("resetting password: %w", err)
			}
		case errors.Is(err, docstore.ErrNotFound):
			rawName, err := randomBytes(16)
			if err != nil {
				return err
			}
			user = types.User{EmailAddress: email, Username: hex.EncodeToString(rawName), HashedPassword: string(hash)}
			if id, err = tx.Insert(ctx, user); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
		default:
			return fmt.Errorf("loading user: %w", err)
		}
		creds = Credentials{UserID: id, Username: user.Username, Password: password}
		return nil
	})
	return creds, err
}

// Authenticate returns the reviewer with username when password matches.
func (s *Service) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	var user types.User
	id, err := s.docs.FindOne(ctx, types.TypeUser, docstore.Template{"username": username}, &user)
	if errors.Is(err, docstore.ErrNotFound) {
		return user, apperr.New(apperr.KindUnauthorized, "incorrect username or password")
	}
	if err != nil {
		return user, fmt.Errorf("loading user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return types.User{}, apperr.New(apperr.KindUnauthorized, "incorrect username or password")
	}
	user.ID = id
	return user, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}
