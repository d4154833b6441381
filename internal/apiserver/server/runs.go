package server

import (
	"context"
	"net/http"
	"strconv"

	"match-admin/internal/apiserver/scheduler"
	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
)

// actor 读取操作者，缺失时写出 400 并返回空串
func actor(w http.ResponseWriter, r *http.Request) string {
	a := r.Header.Get(actorHeader)
	if a == "" {
		writeError(w, http.StatusBadRequest, "missing "+actorHeader+" header")
	}
	return a
}

// CreateRun 新建 Run
// POST /api/v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	who := actor(w, r)
	if who == "" {
		return
	}
	var args model.RunArgs
	if err := decodeJSON(r, &args); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.scheduler.NewRun(r.Context(), who, args)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.create.failed]", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListRuns 列出 Run
// GET /api/v1/runs?owner=&include_finished=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.RunFilter{Owner: q.Get("owner")}
	if raw := q.Get("include_finished"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid include_finished")
			return
		}
		filter.IncludeFinished = v
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = limit

	runs, err := h.scheduler.ListRuns(r.Context(), filter)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.list.failed]", err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// GetRun Run 详情
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.scheduler.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.get.failed]", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ModifyRun 修改目标局数、优先级、吞吐量或说明
// PATCH /api/v1/runs/{id}
func (h *Handler) ModifyRun(w http.ResponseWriter, r *http.Request) {
	who := actor(w, r)
	if who == "" {
		return
	}
	var req scheduler.ModifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.scheduler.ModifyRun(r.Context(), who, r.PathValue("id"), req)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.modify.failed]", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// StopRun 停止 Run
// POST /api/v1/runs/{id}/stop
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "[server.run.stop.failed]", h.scheduler.StopRun)
}

// DeleteRun 删除 Run
// POST /api/v1/runs/{id}/delete
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "[server.run.delete.failed]", h.scheduler.DeleteRun)
}

// ApproveRun 审批 Run
// POST /api/v1/runs/{id}/approve
func (h *Handler) ApproveRun(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "[server.run.approve.failed]", h.scheduler.ApproveRun)
}

func (h *Handler) adminAction(w http.ResponseWriter, r *http.Request, event string,
	fn func(ctx context.Context, actor, id string) (*model.Run, error)) {
	who := actor(w, r)
	if who == "" {
		return
	}
	run, err := fn(r.Context(), who, r.PathValue("id"))
	if err != nil {
		h.writeSchedulerError(w, r, event, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListActions 审计记录，最新的在前
// GET /api/v1/runs/{id}/actions?limit=
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := h.actions.ListActions(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.actions.failed]", err)
		return
	}
	if actions == nil {
		actions = []*model.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions, "count": len(actions)})
}

// ListPGN 已归档的 PGN 对象路径
// GET /api/v1/runs/{id}/pgns
func (h *Handler) ListPGN(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.scheduler.GetRun(r.Context(), id); err != nil {
		h.writeSchedulerError(w, r, "[server.run.pgns.failed]", err)
		return
	}
	keys, err := h.pgns.ListPGN(r.Context(), id)
	if err != nil {
		h.writeSchedulerError(w, r, "[server.run.pgns.failed]", err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pgns": keys, "count": len(keys)})
}
