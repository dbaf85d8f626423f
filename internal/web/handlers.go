package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/registry/internal/registry"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// ImportResponse is the body of a successful import.
type ImportResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    ImportData `json:"data"`
}

// ImportData reports the counts of one import run.
type ImportData struct {
	Total    int      `json:"total"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors,omitempty"`
	Skipped  *int     `json:"skipped,omitempty"`
}

func toImportResponse(out *registry.Outcome) ImportResponse {
	data := ImportData{
		Total:    out.Total,
		Inserted: out.Inserted,
		Updated:  out.Updated,
		Skipped:  out.Skipped,
	}
	for _, e := range out.Errors {
		data.Errors = append(data.Errors, e.String())
	}
	return ImportResponse{
		Success: true,
		Message: fmt.Sprintf("Import completed: %d new, %d updated", out.Inserted, out.Updated),
		Data:    data,
	}
}

// handleImport reconciles an uploaded registry export into the store.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooBig, maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		respondError(w, r, fmt.Errorf("not a csv file: %s", header.Filename), http.StatusBadRequest)
		return
	}

	out, err := s.service.Import(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, toImportResponse(out))
}

// SearchResponse is the body of a public lookup.
type SearchResponse struct {
	Success bool              `json:"success"`
	Found   bool              `json:"found"`
	Message string            `json:"message,omitempty"`
	Data    []registry.Record `json:"data"`
}

// handleSearch looks up professionals by tax ID or name.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Lookup(r.Context(), chi.URLParam(r, "query"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if records == nil {
		records = []registry.Record{}
	}
	resp := SearchResponse{Success: true, Found: len(records) > 0, Data: records}
	if !resp.Found {
		resp.Message = "No professional found for the given tax ID or name"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ListResponse is the body of the admin listing.
type ListResponse struct {
	Success    bool              `json:"success"`
	Data       []registry.Record `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// handleList returns one page of professionals, optionally filtered.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	params := registry.ListParams{
		Search: r.URL.Query().Get("search"),
		Page:   parseIntParam(r, "page", 1),
		Limit:  parseIntParam(r, "limit", registry.DefaultPageSize),
	}
	if params.Limit > registry.MaxPageSize {
		params.Limit = registry.MaxPageSize
	}

	page, err := s.service.List(r.Context(), params)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Success: true,
		Data:    page.Records,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      page.Total,
			TotalPages: int(math.Ceil(float64(page.Total) / float64(params.Limit))),
		},
	})
}

// handleClear deletes every professional.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Clear(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All professionals were removed",
		"deleted": n,
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

// handleUpdateStatus changes the status of one professional.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		respondError(w, r, fmt.Errorf("parse id %q: %w", rawID, registry.ErrNotFound), http.StatusNotFound)
		return
	}

	var req statusRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}

	rec, err := s.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Status updated",
		"data":    rec,
	})
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Imports registry.LimiterStatus `json:"imports"`
}

// handleHealth pings the store and reports import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Imports: s.service.Limiter().Status()}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Error = registry.MapError(err).Message
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
