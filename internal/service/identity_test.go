package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/repository/mocks"
	"collaborative-editor/internal/service"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "very-secret-key"

func TestIdentityService_VerifyIssuedToken(t *testing.T) {
	userRepo := mocks.NewUserRepository(t)
	svc, err := service.NewIdentityService(userRepo, testSecret, 1)
	require.NoError(t, err)

	userRepo.On("FindByID", mock.Anything, uint(5)).
		Return(&domain.User{ID: 5, Username: "eve", DisplayName: "Eve", Avatar: "a.png"}, nil).Once()

	token, err := svc.IssueToken(5)
	require.NoError(t, err)

	identity, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), identity.UserID)
	assert.Equal(t, "Eve", identity.Name())
	assert.Equal(t, "a.png", identity.Avatar)
}

func TestIdentityService_VerifyRejects(t *testing.T) {
	sign := func(secret string, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign("other-secret", jwt.MapClaims{"user_id": 5, "exp": future})},
		{"expired", sign(testSecret, jwt.MapClaims{"user_id": 5, "exp": time.Now().Add(-time.Minute).Unix()})},
		{"missing user id", sign(testSecret, jwt.MapClaims{"exp": future})},
		{"fractional user id", sign(testSecret, jwt.MapClaims{"user_id": 1.5, "exp": future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := mocks.NewUserRepository(t)
			svc, err := service.NewIdentityService(userRepo, testSecret, 1)
			require.NoError(t, err)

			_, err = svc.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
		})
	}
}

func TestIdentityService_VerifyUnknownUser(t *testing.T) {
	userRepo := mocks.NewUserRepository(t)
	svc, _ := service.NewIdentityService(userRepo, testSecret, 1)
	token, err := svc.IssueToken(9)
	require.NoError(t, err)

	userRepo.On("FindByID", mock.Anything, uint(9)).Return(nil, repository.ErrUserNotFound).Once()
	_, err = svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	userRepo.On("FindByID", mock.Anything, uint(9)).Return(nil, errors.New("db down")).Once()
	_, err = svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestNewIdentityService_RequiresSecret(t *testing.T) {
	_, err := service.NewIdentityService(mocks.NewUserRepository(t), "", 1)
	assert.Error(t, err)
}
