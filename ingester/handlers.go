package ingester

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/dsingest/idgen"
	"github.com/hazyhaar/dsingest/kit"
	"github.com/hazyhaar/dsingest/shield"
	"github.com/hazyhaar/dsingest/store"
)

// multipartMemory is how much of a parsed form stays in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Handler builds the full HTTP surface: ingestion, listing, health and
// static serving of the uploads tree.
func Handler(ing *Ingester) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxMultipartBody(ing.Config.MaxBodyBytes()))

	r.Post("/api/datasets", ing.handleCreate)
	r.Get("/api/datasets", ing.handleList)
	r.Get("/healthz", ing.handleHealth)

	uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(ing.Config.UploadsDir)))
	r.Get("/uploads/*", uploads.ServeHTTP)

	return r
}

// requestIDMiddleware tags every request with an ID, honoring one the
// client already supplied, and echoes it back in the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = idgen.Prefixed("req_", idgen.Default)()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (ing *Ingester) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := &CreateRequest{
		Title:       r.FormValue("title"),
		DatasetType: r.FormValue("datasetType"),
		Version:     r.FormValue("version"),
		Options:     ParseOptions(r.FormValue("preprocessOptions")),
	}

	for _, fh := range r.MultipartForm.File["files"] {
		if fh.Size > ing.Config.MaxFileBytes() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("file %s exceeds max size (%d MB)", fh.Filename, ing.Config.MaxFileMB),
			})
			return
		}
		part, err := fh.Open()
		if err != nil {
			ing.log.ErrorContext(r.Context(), "open upload part", "file", fh.Filename, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
			return
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			ing.log.ErrorContext(r.Context(), "read upload part", "file", fh.Filename, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
			return
		}
		req.Files = append(req.Files, UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	res, err := ing.Create(r.Context(), req)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Msg})
			return
		}
		ing.log.ErrorContext(r.Context(), "create dataset failed",
			"error", err, "request_id", kit.GetRequestID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (ing *Ingester) handleList(w http.ResponseWriter, r *http.Request) {
	datasets, err := ing.Datasets()
	if err != nil {
		ing.log.ErrorContext(r.Context(), "list datasets failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.Dataset{"datasets": datasets})
}

func (ing *Ingester) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if doc, err := ing.Store.Snapshot(); err == nil {
		body["datasets"] = len(doc.Datasets)
		body["files"] = len(doc.Files)
	}
	if ing.Events != nil {
		counters := map[string]int{}
		for _, action := range []string{"created", "processed", "dedup_skipped", "raw_stored", "decode_failed"} {
			n, err := ing.Events.CountByAction(r.Context(), action)
			if err != nil {
				continue
			}
			counters[action] = n
		}
		body["events"] = counters
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
