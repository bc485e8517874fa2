package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"betclever/internal/middleware"
	"betclever/internal/util"
)

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": users, "total": len(users)})
}

func (h *Handlers) AdminVerifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Verifications(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items, "total": len(items)})
}

func (h *Handlers) AdminChangePassword(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	if err := h.svc.ChangePassword(r.Context(), admin.ID, chi.URLParam(r, "id"), req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "updated"})
}

func (h *Handlers) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))
	if err := h.svc.DeleteUser(r.Context(), admin.ID, chi.URLParam(r, "id"), purge); err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"status": "deleted", "purged": purge})
}

func (h *Handlers) AdminUserProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.UserProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, p)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) AdminSetReviewStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	p, err := h.svc.SetReviewStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, p)
}

func (h *Handlers) AdminSetProjectStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	p, err := h.svc.SetProjectStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, p)
}

func (h *Handlers) AdminUserDocuments(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.Documents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"documents": set.Meta(), "complete": set.Complete()})
}

func documentIndex(r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	return idx, err == nil
}

func (h *Handlers) AdminDownloadDocument(w http.ResponseWriter, r *http.Request) {
	idx, ok := documentIndex(r)
	if !ok {
		util.WriteError(w, 400, "bad_request", "invalid document index", middleware.RequestID(r.Context()))
		return
	}
	doc, data, contentType, err := h.svc.DocumentContent(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bucket"), idx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	disposition := "attachment"
	if inline, _ := strconv.ParseBool(r.URL.Query().Get("inline")); inline {
		disposition = "inline"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": doc.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handlers) AdminDeleteDocument(w http.ResponseWriter, r *http.Request) {
	idx, ok := documentIndex(r)
	if !ok {
		util.WriteError(w, 400, "bad_request", "invalid document index", middleware.RequestID(r.Context()))
		return
	}
	doc, err := h.svc.DeleteDocument(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bucket"), idx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"status": "deleted", "file_name": doc.FileName})
}
