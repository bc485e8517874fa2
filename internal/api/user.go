package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"betclever/internal/middleware"
	"betclever/internal/models"
	"betclever/internal/service"
	"betclever/internal/store"
	"betclever/internal/upload"
	"betclever/internal/util"
)

// multipartMemory bounds what ParseMultipartForm keeps in memory; larger
// parts spill to temporary files.
const multipartMemory = 8 << 20

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	view, err := h.svc.Profile(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, view)
}

func (h *Handlers) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var in service.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	p, err := h.svc.SubmitProfile(r.Context(), u, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, service.ProfileView{Profile: p, Exists: true, Editable: p.Editable()})
}

func (h *Handlers) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	if h.cfg.UploadMaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "upload exceeds request size limit", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 400, "bad_request", "invalid multipart form", middleware.RequestID(r.Context()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := make(map[models.Bucket][]upload.File, len(models.Buckets))
	for field, headers := range r.MultipartForm.File {
		b, err := models.ParseBucket(field)
		if err != nil {
			h.writeError(w, r, store.ErrUnknownBucket)
			return
		}
		for _, fh := range headers {
			files[b] = append(files[b], upload.FromFileHeader(fh))
		}
	}
	if len(files) == 0 {
		util.WriteError(w, 400, "no_files", "no documents in upload", middleware.RequestID(r.Context()))
		return
	}
	res, err := h.svc.UploadDocuments(r.Context(), u.ID, files)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, res)
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	set, err := h.svc.Documents(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"documents": set.Meta(), "complete": set.Complete()})
}

func (h *Handlers) Pipeline(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	view, err := h.svc.Pipeline(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, view)
}

func (h *Handlers) Guide(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, 200, h.svc.Guide())
}
