package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/haontuhcmut/lab-services/internal/audit"
	"github.com/haontuhcmut/lab-services/internal/store"
)

// readImage accepts either a multipart form with a "file" field or a raw
// image body.
func readImage(r *http.Request) ([]byte, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(contentType, "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("multipart field 'file' is required")
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image body is required")
	}
	return data, nil
}

func (a *API) handleDetect(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	result, err := a.detector.Detect(r.Context(), image)
	if err != nil {
		writeError(w, http.StatusBadGateway, "inference_unavailable", "Object detection is unavailable", "Retry later")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detect_objects_names":   result.Names(),
		"detection_objects":      result.Objects,
		"total_detected_objects": result.Total(),
	})
}

func (a *API) handleDetectImage(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error", "")
		return
	}
	sampleName := strings.TrimSpace(r.URL.Query().Get("sample_name"))

	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	result, rendered, err := a.detector.Annotate(r.Context(), image)
	if err != nil {
		writeError(w, http.StatusBadGateway, "inference_unavailable", "Object detection is unavailable", "Retry later")
		return
	}

	record := &store.Detection{
		SampleName:   sampleName,
		TotalObjects: result.Total(),
		UserID:       principal.ID,
	}
	if err := a.detections.Create(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error", "")
		return
	}
	_ = audit.LogEvent(r.Context(), "detection.recorded", map[string]any{
		"detection_id":  record.ID,
		"total_objects": record.TotalObjects,
	})

	if record.TotalObjects == 0 {
		writeError(w, http.StatusNotFound, "no_objects_detected",
			"No target detected or image out of training scope. Try another image.", "")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered)
}

func historyLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 100
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > 1000 {
		return 100
	}
	return v
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error", "")
		return
	}
	items, err := a.detections.ListByUser(r.Context(), principal.ID, historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error", "")
		return
	}
	if items == nil {
		items = []store.Detection{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleHistoryAll(w http.ResponseWriter, r *http.Request) {
	items, err := a.detections.ListAll(r.Context(), historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error", "")
		return
	}
	if items == nil {
		items = []store.Detection{}
	}
	writeJSON(w, http.StatusOK, items)
}
