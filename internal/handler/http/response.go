package http

import (
	"net/http"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// mustIdentity 取出调用者身份。缺失说明路由没有挂 Auth 中间件。
func mustIdentity(c *gin.Context) (domain.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		logrus.WithField("path", c.FullPath()).Error("Handler: identity missing from context, auth middleware not installed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return domain.Identity{}, false
	}
	return identity, true
}
