package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// IdentityService 校验外部身份系统签发的 JWT，并加载调用者资料。
// 注册与密码校验不在这里处理。
type IdentityService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewIdentityService 创建 IdentityService 实例。
// jwtExpiryHours 只影响 IssueToken。
func NewIdentityService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int) (*IdentityService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for IdentityService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &IdentityService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Verify 校验 token 并返回调用者身份。任何失败都返回 ErrAuthenticationFailed。
func (s *IdentityService) Verify(ctx context.Context, tokenStr string) (*domain.Identity, error) {
	if tokenStr == "" {
		return nil, ErrAuthenticationFailed
	}

	userID, err := s.parseToken(tokenStr)
	if err != nil {
		logCtx := logrus.WithError(err)
		var validationError *jwt.ValidationError
		if errors.As(err, &validationError) {
			if validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx = logCtx.WithField("reason", "expired")
			}
			if validationError.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
				logCtx = logCtx.WithField("reason", "signature")
			}
		}
		logCtx.Warn("Identity verification failed: invalid token")
		return nil, ErrAuthenticationFailed
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logrus.WithField("user_id", userID).Warn("Identity verification failed: user not found")
			return nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Identity verification failed: repository error")
		return nil, ErrInternalServer
	}
	if user == nil {
		return nil, ErrAuthenticationFailed
	}

	identity := domain.IdentityFromUser(user)
	return &identity, nil
}

// IssueToken 为用户签发 token，供开发工具和测试使用。
func (s *IdentityService) IssueToken(userID uint) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.jwtExpiry).Unix(),
		"iat":     now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// IssueTokenForUsername 为已存在的用户签发 token，只在开发环境暴露。
func (s *IdentityService) IssueTokenForUsername(ctx context.Context, username string) (string, *domain.Identity, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to load user for token issue")
		return "", nil, ErrInternalServer
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return "", nil, ErrInternalServer
	}
	identity := domain.IdentityFromUser(user)
	return token, &identity, nil
}

// parseToken 解析 token 并取出 user_id
func (s *IdentityService) parseToken(tokenStr string) (uint, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token or claims type")
	}

	// JWT 数字默认为 float64
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 || userIDFloat != float64(uint(userIDFloat)) {
		return 0, fmt.Errorf("invalid user_id claim: %v", claims["user_id"])
	}
	return uint(userIDFloat), nil
}
