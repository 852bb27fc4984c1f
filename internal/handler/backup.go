package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"hearthledger/internal/auth"
	"hearthledger/internal/backup"
)

// BackupHandler exposes encrypted household exports. All routes are mounted
// behind the pro gate.
type BackupHandler struct {
	svc    *backup.Service
	logger *slog.Logger
}

func NewBackupHandler(svc *backup.Service, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		svc:    svc,
		logger: logger.With("component", "backup"),
	}
}

// Run creates and uploads a fresh encrypted export.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Passphrase) < 8 {
		writeError(w, http.StatusBadRequest, "passphrase must be at least 8 characters")
		return
	}

	key, err := h.svc.Run(r.Context(), householdID, req.Passphrase)
	if err != nil {
		if errors.Is(err, backup.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "backups not configured")
			return
		}
		h.logger.Error("run backup", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// List returns the household's stored backups.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	keys, err := h.svc.List(r.Context(), householdID)
	if err != nil {
		if errors.Is(err, backup.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "backups not configured")
			return
		}
		h.logger.Error("list backups", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Download streams one encrypted backup back to the client. Decryption
// happens client side; the passphrase never reaches this endpoint.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	body, err := h.svc.Download(r.Context(), householdID, key)
	if err != nil {
		if errors.Is(err, backup.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "backups not configured")
			return
		}
		h.logger.Error("download backup", "household_id", householdID, "error", err)
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("stream backup", "error", err)
	}
}

// Status reports whether backups are configured and when one last ran.
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}
