package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/process"
	"github.com/alertsift/alertsift/internal/spreadsheet"
	"github.com/alertsift/alertsift/internal/task"
)

const maxUploadBytes = 64 << 20 // 64 MiB per workbook

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("server.encode_error", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleUpload accepts a multipart workbook and registers a task for it.
// POST /upload, field name "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	filename := sanitizeFilename(header.Filename)
	if !s.extensionAllowed(filename) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file extension, allowed: %s", strings.Join(s.cfg.Web.AllowedExtensions, ", ")))
		return
	}

	if err := os.MkdirAll(s.cfg.Web.UploadFolder, 0o755); err != nil {
		s.logger.Error("server.upload.mkdir_failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}

	taskID := "task_" + uuid.New().String()
	destPath := filepath.Join(s.cfg.Web.UploadFolder, taskID+"_"+filename)
	dest, err := os.Create(destPath)
	if err != nil {
		s.logger.Error("server.upload.create_failed", "path", destPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		_ = dest.Close()
		_ = os.Remove(destPath)
		s.writeError(w, http.StatusInternalServerError, "upload write failed")
		return
	}
	_ = dest.Close()

	t := task.Task{
		ID:        taskID,
		Filename:  filename,
		FilePath:  destPath,
		Status:    task.StatusUploaded,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(r.Context(), t); err != nil {
		_ = os.Remove(destPath)
		s.writeError(w, http.StatusInternalServerError, "cannot register task")
		return
	}

	s.logger.Info("server.upload.ok", "task_id", taskID, "filename", filename)
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("server.tasks.list_failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot list tasks")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), t.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "cannot delete task")
		return
	}
	// Uploaded workbook and outputs are best-effort cleanup.
	_ = os.Remove(t.FilePath)
	if t.OutputDir != "" {
		_ = os.RemoveAll(t.OutputDir)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// processRequest is the body for POST /tasks/{taskID}/process.
type processRequest struct {
	SelectedColumns []string `json:"selected_columns"`
	MaxRows         int      `json:"max_rows,omitempty"`
}

// handleProcess starts the batch in the background and returns
// immediately; progress is polled separately.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if t.Status == task.StatusProcessing {
		s.writeError(w, http.StatusConflict, "task is already processing")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	go func() {
		// The batch outlives the HTTP request on purpose: there is no
		// mid-batch cancellation, a run goes to completion.
		ctx := context.Background()
		if err := s.runner.ProcessTask(ctx, t.ID, task.RunOptions{
			SelectedColumns: req.SelectedColumns,
			MaxRows:         req.MaxRows,
		}); err != nil {
			s.logger.Error("server.process.failed", "task_id", t.ID, "error", err)
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"task_id": t.ID,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if tracker := s.runner.Registry().Get(t.ID); tracker != nil {
		s.writeJSON(w, http.StatusOK, tracker.Snapshot())
		return
	}
	// No live tracker: report from the persisted task row.
	snap := process.Progress{
		TotalRows: t.TotalRows,
		Status:    process.StatusPending,
		UpdatedAt: t.CreatedAt,
	}
	switch t.Status {
	case task.StatusCompleted:
		snap.Status = process.StatusCompleted
		snap.ProcessedRows = t.TotalRows
		if t.CompletedAt != nil {
			snap.UpdatedAt = *t.CompletedAt
		}
	case task.StatusFailed:
		snap.Status = process.StatusFailed
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	header, rows, err := spreadsheet.Preview(t.FilePath, 10)
	if err != nil {
		s.logger.Error("server.preview.failed", "task_id", t.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot preview workbook")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"columns": header,
		"rows":    rows,
	})
}

// handleDownload serves one result workbook: kind is "valid" or "invalid".
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if t.OutputDir == "" {
		s.writeError(w, http.StatusNotFound, "task has no results yet")
		return
	}

	var name string
	switch chi.URLParam(r, "kind") {
	case "valid":
		name = task.ValidResultsFile
	case "invalid":
		name = task.InvalidRecordsFile
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be valid or invalid")
		return
	}

	path := filepath.Join(t.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, http.StatusNotFound, "result file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg)
}

// handleUpdateConfig validates and persists a full replacement config.
// It takes effect for runs started after the update.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg common.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid config body")
		return
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.configPath != "" {
		if err := common.SaveConfig(s.configPath, cfg); err != nil {
			s.logger.Error("server.config.save_failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "cannot persist config")
			return
		}
	}
	s.cfg = cfg
	s.logger.Info("server.config.updated")
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) loadTask(w http.ResponseWriter, r *http.Request) (task.Task, bool) {
	id := chi.URLParam(r, "taskID")
	t, err := s.store.Get(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return task.Task{}, false
	}
	if err != nil {
		s.logger.Error("server.task.load_failed", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot load task")
		return task.Task{}, false
	}
	return t, true
}

func (s *Server) extensionAllowed(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range s.cfg.Web.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// sanitizeFilename keeps only the base name and replaces path-hostile
// characters so an upload cannot escape the upload folder.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	replacer := strings.NewReplacer("..", "_", "/", "_", "\\", "_", "\x00", "_")
	name = replacer.Replace(name)
	if name == "" || name == "." {
		name = "upload.xlsx"
	}
	return name
}
