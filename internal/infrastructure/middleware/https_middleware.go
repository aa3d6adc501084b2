// Package middleware 提供 gin 中间件
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
)

// SecureHeaders 设置安全响应头，sslRedirect 开启时把 HTTP 请求重定向到 HTTPS
// dev 模式下 secure 会跳过检查
func SecureHeaders(cfg *config.MainConfig) gin.HandlerFunc {
	// 在返回函数之前初始化，避免每次请求都重复创建
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:        cfg.SSLRedirect,
		SSLHost:            cfg.Host + ":" + strconv.Itoa(cfg.Port),
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		IsDevelopment:      cfg.Mode == "dev",
	})

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// 已被重定向或拒绝，不再继续处理
			zap.L().Debug("secure middleware rejected request",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.Abort()
			return
		}
		// 重定向时 secure 已写出响应
		if status := c.Writer.Status(); status > 300 && status < 399 {
			c.Abort()
			return
		}
		c.Next()
	}
}
