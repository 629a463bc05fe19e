package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"collaborative-editor/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// ContextUserID gin 上下文中保存调用者 ID 的键
	ContextUserID = "user_id"
	// ContextIdentity gin 上下文中保存调用者身份的键
	ContextIdentity = "identity"
)

// ErrMissingToken 请求中没有携带 token
var ErrMissingToken = errors.New("missing bearer token")

// TokenVerifier 校验 token 并返回调用者身份
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// Auth 返回一个 Gin 中间件，校验请求携带的 token 并把调用者身份写入上下文。
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	if verifier == nil {
		panic("TokenVerifier cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := ExtractToken(c)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Error extracting token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			// Verify 已记录具体原因
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextIdentity, *identity)
		logrus.WithField("user_id", identity.UserID).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// IdentityFrom 取出 Auth 中间件写入的调用者身份
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

// ExtractToken 从 Authorization 头提取 Bearer token。
// 浏览器的 WebSocket 不能设置请求头，因此也接受 token 查询参数。
func ExtractToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("malformed Authorization header")
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
