package router

import (
	"context"
	"crypto/subtle"

	"resume-screener/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

const (
	apiKeyHeader = "X-API-Key"
	healthPath   = "/api/v1/health"
)

// RegisterRoutes 注册界面与 API 路由。apiKeys 非空时 /api/v1 需要携带 X-API-Key（健康检查除外）。
func RegisterRoutes(h *server.Hertz, screening *handler.ScreeningHandler, apiKeys []string) {
	h.GET("/", screening.Index)

	api := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(APIKeyAuth(apiKeys))
	}

	api.GET("/health", screening.Health)

	api.POST("/analyze", screening.Analyze)
	api.POST("/ask", screening.Ask)
	api.POST("/rank", screening.Rank)
	api.GET("/jobs/:id", screening.JobStatus)
	api.GET("/reports/:file", screening.Report)

	api.GET("/history", screening.ListHistory)
	api.GET("/history/:id", screening.GetHistory)
}

// APIKeyAuth 校验请求头中的 API Key
func APIKeyAuth(apiKeys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+apiKeyHeader, ""),
		keyauth.WithFilter(func(c context.Context, ctx *app.RequestContext) bool {
			return string(ctx.Path()) == healthPath
		}),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			for _, k := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效或缺失的 API Key"})
		}),
	)
}
