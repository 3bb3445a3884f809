package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/lacase_backend/appctx"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
)

// CorrelationMiddleware carries x-correlation-id (or a fresh one) in the request context.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// LocaleMiddleware resolves Accept-Language once per request.
func LocaleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := requestLocale(c.GetHeader("Accept-Language"))
		c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyLocale, tag))
		c.Next()
	}
}

func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        time.Since(start).String(),
			"correlation_id": cid,
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request")
			return
		}
		entry.Info("request")
	}
}
