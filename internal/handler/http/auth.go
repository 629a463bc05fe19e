package http

import (
	"context"
	"errors"
	"net/http"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TokenIssuer 为已有用户签发 token
type TokenIssuer interface {
	IssueTokenForUsername(ctx context.Context, username string) (string, *domain.Identity, error)
}

// AuthHandler 开发环境的 token 签发接口。生产环境的 token 由外部身份系统签发。
type AuthHandler struct {
	issuer TokenIssuer
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	if issuer == nil {
		panic("TokenIssuer cannot be nil for AuthHandler")
	}
	return &AuthHandler{issuer: issuer}
}

// DevTokenRequest 签发 token 的请求体
type DevTokenRequest struct {
	Username string `json:"username" binding:"required,min=1,max=191"`
}

// DevTokenResponse 签发成功的响应
type DevTokenResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

// IssueDevToken 为用户名对应的用户签发 token
func (h *AuthHandler) IssueDevToken(c *gin.Context) {
	var req DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.IssueDevToken: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: username is required")
		return
	}

	token, identity, err := h.issuer.IssueTokenForUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, service.ErrAuthenticationFailed) {
			logrus.WithField("username", req.Username).Warn("Handler.IssueDevToken: Unknown user")
			ErrorResponse(c, http.StatusNotFound, "User not found")
			return
		}
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", identity.UserID).Info("Handler.IssueDevToken: Token issued")
	SuccessResponse(c, http.StatusOK, DevTokenResponse{Token: token, User: *identity})
}
