// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

func newService(t *testing.T) (*Service, *docstore.Store) {
	t.Helper()
	docs, err := docstore.Open(types.DocStoreConfig{Path: filepath.Join(t.TempDir(), "docs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	return NewService(docs, WithCost(bcrypt.MinCost)), docs
}

func TestInviteLinks(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	link, err := s.NewInviteLink(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, link.ID)
	assert.Len(t, link.Token, 43)

	got, err := s.ValidInviteLink(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)

	_, err = s.ValidInviteLink(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = s.ValidInviteLink(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRequestCredentialsCreatesThenResets(t *testing.T) {
	ctx := context.Background()
	s, docs := newService(t)
	link, err := s.NewInviteLink(ctx)
	require.NoError(t, err)

	first, err := s.RequestCredentials(ctx, link.Token, "Reviewer <rev@example.com>")
	require.NoError(t, err)
	assert.Len(t, first.Username, 32)
	assert.Len(t, first.Password, 64)

	user, err := s.Authenticate(ctx, first.Username, first.Password)
	require.NoError(t, err)
	assert.Equal(t, "rev@example.com", user.EmailAddress)
	assert.Equal(t, first.UserID, user.ID)

	second, err := s.RequestCredentials(ctx, link.Token, "rev@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.Username, second.Username)
	assert.NotEqual(t, first.Password, second.Password)

	_, err = s.Authenticate(ctx, first.Username, first.Password)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "old password no longer works")
	_, err = s.Authenticate(ctx, second.Username, second.Password)
	require.NoError(t, err)

	reqs, err := docstore.All[types.CredentialsRequest](ctx, docs, types.TypeCredentialsRequest, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, link.ID, reqs[0].InviteLink)

	users, err := docstore.All[types.User](ctx, docs, types.TypeUser, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRequestCredentialsRejects(t *testing.T) {
	ctx := context.Background()
	s, docs := newService(t)
	link, err := s.NewInviteLink(ctx)
	require.NoError(t, err)

	_, err = s.RequestCredentials(ctx, "bogus", "rev@example.com")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.RequestCredentials(ctx, link.Token, "not an email")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	reqs, err := docstore.All[types.CredentialsRequest](ctx, docs, types.TypeCredentialsRequest, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Authenticate(context.Background(), "ghost", "pw")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}
