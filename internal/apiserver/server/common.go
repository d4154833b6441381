// Package server HTTP 请求入口
//
// 本包把调度器的操作暴露为 RESTful 接口，只负责解码、错误分类和编码，
// 不持有任何 Run 状态：
//   - Worker 接口：领取任务、上报结果
//   - 管理接口：新建、修改、停止、删除、审批 Run，查询审计记录与 PGN
//   - 封禁名单接口（注册表支持写入时启用）
//
// 文件组织：
//   - common.go: Handler 定义与通用工具函数
//   - handler.go: 路由与中间件
//   - worker.go: Worker 接口
//   - runs.go: Run 管理接口
//   - metrics.go: HTTP 指标
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"match-admin/internal/apiserver/scheduler"
	"match-admin/internal/shared/archive"
	"match-admin/internal/shared/registry"
	"match-admin/internal/shared/storage"
	"match-admin/pkg/logging"
)

// maxBodyBytes 单个请求体上限，PGN 随结果一起上报
const maxBodyBytes = 8 << 20

// actorHeader 管理操作的操作者
const actorHeader = "X-Actor"

// Handler API 处理器
//
// 可选依赖通过 Set* 注入，未注入时对应路由不注册：
//   - blocklist: 封禁名单管理
//   - actions: 审计记录查询
//   - pgns: PGN 列表查询
type Handler struct {
	scheduler *scheduler.Scheduler

	blocklist registry.Blocklist
	actions   storage.ActionStore
	pgns      archive.Lister

	logger   *logging.Logger
	metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewHandler 创建 Handler 实例
//
// 指标默认注册到私有注册表，/metrics 只导出 HTTP 指标；
// 进程入口通过 SetMetrics 切换到默认注册表。
func NewHandler(sched *scheduler.Scheduler) *Handler {
	reg := prometheus.NewRegistry()
	return &Handler{
		scheduler: sched,
		logger:    logging.Default("server"),
		metrics:   NewMetrics(reg, "match"),
		gatherer:  reg,
	}
}

// SetLogger 替换日志器
func (h *Handler) SetLogger(logger *logging.Logger) {
	h.logger = logger
}

// SetMetrics 替换指标与 /metrics 导出的 Gatherer
func (h *Handler) SetMetrics(m *Metrics, gatherer prometheus.Gatherer) {
	if m != nil {
		h.metrics = m
	}
	if gatherer != nil {
		h.gatherer = gatherer
	}
}

// SetBlocklist 启用 /api/v1/workers/{name}/block 接口
func (h *Handler) SetBlocklist(b registry.Blocklist) {
	h.blocklist = b
}

// SetActionStore 启用 /api/v1/runs/{id}/actions 接口
func (h *Handler) SetActionStore(s storage.ActionStore) {
	h.actions = s
}

// SetPGNLister 启用 /api/v1/runs/{id}/pgns 接口
func (h *Handler) SetPGNLister(l archive.Lister) {
	h.pgns = l
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor 调度器错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrWorkerBlocked):
		return http.StatusForbidden
	case errors.Is(err, scheduler.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeSchedulerError 分类写出错误，5xx 只返回通用信息并记录日志
func (h *Handler) writeSchedulerError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).Error(event, "method", r.Method, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON 解码请求体，拒绝未知字段
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt 读取非负整数查询参数，缺省返回 def
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

// Health 健康检查接口
//
// 路由: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
