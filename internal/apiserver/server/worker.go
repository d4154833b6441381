package server

import (
	"net/http"
	"strconv"

	"match-admin/internal/apiserver/scheduler"
)

// taskRequest 领取任务的请求体
type taskRequest struct {
	Worker string `json:"worker"`
	scheduler.Capabilities
}

// RequestTask 领取任务
// POST /api/v1/tasks/request
//
// 没有可分配的局数时返回 200 {"no_work":true}；Worker 被封禁时返回 403。
func (h *Handler) RequestTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.scheduler.RequestTask(r.Context(), req.Worker, req.Capabilities)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.request_task.failed]", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateTask 上报增量结果
// POST /api/v1/runs/{id}/tasks/{index}
//
// 路径中的 Run ID 和 Task 下标优先于请求体。请求体必须带 worker，
// 与 Task 持有者不一致时返回 task_alive=false。task_alive=false 时 Worker 必须停止当前 Task。
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task index")
		return
	}

	var req scheduler.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Worker == "" {
		writeError(w, http.StatusBadRequest, "worker is required")
		return
	}
	req.RunID = r.PathValue("id")
	req.TaskIndex = index

	res, err := h.scheduler.UpdateTask(r.Context(), req)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.update_task.failed]", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BlockWorker 封禁 Worker
// PUT /api/v1/workers/{name}/block
func (h *Handler) BlockWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.blocklist.Block(r.Context(), name); err != nil {
		h.writeSchedulerError(w, r, "[server.worker.block.failed]", err)
		return
	}
	h.logger.WithContext(r.Context()).WithWorker(name).Info("[server.worker.blocked]")
	writeJSON(w, http.StatusOK, map[string]interface{}{"worker": name, "blocked": true})
}

// UnblockWorker 解除封禁
// DELETE /api/v1/workers/{name}/block
func (h *Handler) UnblockWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.blocklist.Unblock(r.Context(), name); err != nil {
		h.writeSchedulerError(w, r, "[server.worker.unblock.failed]", err)
		return
	}
	h.logger.WithContext(r.Context()).WithWorker(name).Info("[server.worker.unblocked]")
	writeJSON(w, http.StatusOK, map[string]interface{}{"worker": name, "blocked": false})
}
