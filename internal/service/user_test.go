package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go_Drop/config"
	"Go_Drop/utils"
)

func TestRegisterWithoutMailerActivatesImmediately(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	db := newTestDB(t)
	users := NewUserService(db, nil, nil, "")
	ctx := context.Background()

	user, err := users.Register(ctx, "alice", "secret1", "Alice@Example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.IsActive)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.Password)

	_, err = users.Register(ctx, "alice", "other12", "x@example.com")
	assert.ErrorIs(t, err, ErrUserExists)

	_, _, err = users.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = users.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, token, err := users.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	claims, err := utils.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserId)
}

func TestRegisterWithMailerNeedsActivation(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	db := newTestDB(t)
	var sentTo, link string
	mailer := func(to, l string) error {
		sentTo, link = to, l
		return nil
	}
	users := NewUserService(db, utils.NewMemoryCache(), mailer, "https://drop.example.com/")
	ctx := context.Background()

	user, err := users.Register(ctx, "bob", "secret1", "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Equal(t, "bob@example.com", sentTo)
	require.True(t, strings.HasPrefix(link, "https://drop.example.com/api/activate?token="), link)

	_, _, err = users.Login(ctx, "bob", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Activate(ctx, "bogus")
	assert.ErrorIs(t, err, ErrActivationInvalid)

	token := strings.TrimPrefix(link, "https://drop.example.com/api/activate?token=")
	activated, err := users.Activate(ctx, token)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	_, err = users.Activate(ctx, token)
	assert.ErrorIs(t, err, ErrActivationInvalid)

	_, _, err = users.Login(ctx, "bob", "secret1")
	require.NoError(t, err)
}
