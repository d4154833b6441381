// Package server 路由配置与中间件
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"match-admin/pkg/logging"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查与指标:
//   - GET /health
//   - GET /metrics
//
// Worker:
//   - POST /api/v1/tasks/request                 - 领取任务
//   - POST /api/v1/runs/{id}/tasks/{index}       - 上报增量结果
//
// Run 管理（操作者取自 X-Actor）:
//   - POST   /api/v1/runs                        - 新建 Run
//   - GET    /api/v1/runs                        - 列出 Run
//   - GET    /api/v1/runs/{id}                   - Run 详情
//   - PATCH  /api/v1/runs/{id}                   - 修改 Run
//   - POST   /api/v1/runs/{id}/stop              - 停止
//   - POST   /api/v1/runs/{id}/delete            - 删除
//   - POST   /api/v1/runs/{id}/approve           - 审批
//   - GET    /api/v1/runs/{id}/actions           - 审计记录（需要 ActionStore）
//   - GET    /api/v1/runs/{id}/pgns              - PGN 列表（需要 archive.Lister）
//
// 封禁名单（需要 registry.Blocklist）:
//   - PUT    /api/v1/workers/{name}/block
//   - DELETE /api/v1/workers/{name}/block
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", MetricsHandler(h.gatherer))

	mux.HandleFunc("POST /api/v1/tasks/request", h.RequestTask)
	mux.HandleFunc("POST /api/v1/runs/{id}/tasks/{index}", h.UpdateTask)

	mux.HandleFunc("POST /api/v1/runs", h.CreateRun)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("PATCH /api/v1/runs/{id}", h.ModifyRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/stop", h.StopRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/delete", h.DeleteRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/approve", h.ApproveRun)

	if h.actions != nil {
		mux.HandleFunc("GET /api/v1/runs/{id}/actions", h.ListActions)
	}
	if h.pgns != nil {
		mux.HandleFunc("GET /api/v1/runs/{id}/pgns", h.ListPGN)
	}
	if h.blocklist != nil {
		mux.HandleFunc("PUT /api/v1/workers/{name}/block", h.BlockWorker)
		mux.HandleFunc("DELETE /api/v1/workers/{name}/block", h.UnblockWorker)
	}

	var handler http.Handler = mux
	handler = h.metrics.MetricsMiddleware(handler)
	handler = h.requestLogMiddleware(handler)
	return corsMiddleware(handler)
}

// requestLogMiddleware 注入请求 ID 与操作者，请求结束后记录访问日志
func (h *Handler) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logging.RequestIDKey, requestID)
		if actor := r.Header.Get(actorHeader); actor != "" {
			ctx = context.WithValue(ctx, logging.ActorKey, actor)
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		h.logger.WithContext(ctx).HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), r.RemoteAddr)
	})
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
