package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-welfare/shikra/internal/domain"
	"github.com/opensource-welfare/shikra/internal/repository"
	"github.com/opensource-welfare/shikra/internal/rules"
	"github.com/opensource-welfare/shikra/internal/scoring"
)

// reportCacheTTL is how long completed reports stay in cache.
const reportCacheTTL = time.Hour

// previewRows is the number of records echoed back after upload.
const previewRows = 10

// requiredColumns are the CSV columns every uploaded dataset must carry.
var requiredColumns = []string{
	"beneficiary_id", "name", "aadhaar", "income", "location_state",
	"subsidy_type", "amount", "claim_date", "distributor_id",
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo           domain.Repository
	cache          domain.Cache
	bus            domain.EventBus
	engine         *scoring.Engine
	screen         *rules.ScreenEngine
	maxUploadBytes int64
	version        string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *scoring.Engine, screen *rules.ScreenEngine, maxUploadBytes int64, version string) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handler{
		repo:           repo,
		cache:          cache,
		bus:            bus,
		engine:         engine,
		screen:         screen,
		maxUploadBytes: maxUploadBytes,
		version:        version,
	}
}

// UploadResponse is the response for POST /upload.
type UploadResponse struct {
	FileID    string               `json:"file_id"`
	Filename  string               `json:"filename"`
	TotalRows int                  `json:"total_rows"`
	Preview   []domain.ClaimRecord `json:"preview"`
}

// Upload handles POST /upload requests: parses a claims CSV, stores the
// dataset and announces it on the event bus.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart form: " + err.Error(),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file field is required",
		})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "only CSV files are supported",
		})
		return
	}

	records, err := parseClaimsCSV(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	ds := &domain.Dataset{
		ID:        uuid.New().String(),
		Name:      header.Filename,
		Records:   records,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.SaveDataset(ctx, ds); err != nil {
		slog.Error("failed to save dataset", "file_id", ds.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store dataset",
		})
		return
	}

	// Announce ingestion; async workers pick this up in Pro deployments.
	if h.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"fileId":   ds.ID,
			"filename": ds.Name,
			"rowCount": len(records),
		})
		if err := h.bus.Publish(ctx, domain.TopicDatasetIngested, payload); err != nil {
			slog.Warn("failed to publish dataset ingested event",
				"file_id", ds.ID,
				"error", err,
			)
		}
	}

	preview := records
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	slog.Info("dataset uploaded",
		"file_id", ds.ID,
		"filename", ds.Name,
		"rows", len(records),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		FileID:    ds.ID,
		Filename:  ds.Name,
		TotalRows: len(records),
		Preview:   preview,
	})
}

// parseClaimsCSV reads claim records from CSV data. The header row must
// contain all required columns; column order is free.
func parseClaimsCSV(r io.Reader) ([]domain.ClaimRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var records []domain.ClaimRecord
	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		income, err := strconv.ParseFloat(strings.TrimSpace(row[index["income"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid income value %q", rowNum, row[index["income"]])
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(row[index["amount"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amount value %q", rowNum, row[index["amount"]])
		}

		records = append(records, domain.ClaimRecord{
			BeneficiaryID: strings.TrimSpace(row[index["beneficiary_id"]]),
			Name:          strings.TrimSpace(row[index["name"]]),
			Aadhaar:       strings.TrimSpace(row[index["aadhaar"]]),
			Income:        income,
			LocationState: strings.TrimSpace(row[index["location_state"]]),
			SubsidyType:   strings.TrimSpace(row[index["subsidy_type"]]),
			Amount:        amount,
			ClaimDate:     strings.TrimSpace(row[index["claim_date"]]),
			DistributorID: strings.TrimSpace(row[index["distributor_id"]]),
		})
	}

	if len(records) == 0 {
		return nil, errors.New("CSV contains no data rows")
	}

	return records, nil
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	FileID string `json:"file_id"`
}

// Analyze handles POST /analyze requests: scores a stored dataset
// synchronously and returns the full report.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.FileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file_id is required",
		})
		return
	}

	ds, err := h.repo.GetDataset(ctx, req.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "file not found. Upload the dataset first.",
			})
			return
		}
		slog.Error("failed to load dataset", "file_id", req.FileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load dataset",
		})
		return
	}

	report, err := h.engine.Score(ctx, ds.Records)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRecord) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("scoring failed", "file_id", req.FileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}
	report.FileID = req.FileID

	if err := h.repo.SaveReport(ctx, report); err != nil {
		slog.Error("failed to save report", "file_id", req.FileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store report",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, req.FileID, report, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "file_id", req.FileID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"fileId":         req.FileID,
			"totalRecords":   report.TotalRecords,
			"flaggedCount":   report.FlaggedCount,
			"leakagePercent": report.LeakagePercent,
			"durationMs":     time.Since(start).Milliseconds(),
		})
		if err := h.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Warn("failed to publish analysis event", "file_id", req.FileID, "error", err)
		}
	}

	slog.Info("analysis completed",
		"file_id", req.FileID,
		"total_records", report.TotalRecords,
		"flagged_count", report.FlaggedCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, report)
}

// GetResults handles GET /results/{id}: cache first, then repository.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file id is required",
		})
		return
	}

	if h.cache != nil {
		if report, err := h.cache.GetReport(ctx, fileID); err == nil && report != nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.repo.GetReport(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no analysis found for this file. Run /analyze first.",
			})
			return
		}
		slog.Error("failed to get report", "file_id", fileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return
	}

	// Warm the cache for subsequent reads
	if h.cache != nil {
		_ = h.cache.SetReport(ctx, fileID, report, reportCacheTTL)
	}

	writeJSON(w, http.StatusOK, report)
}

// ListDatasets handles GET /datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	infos, err := h.repo.ListDatasets(r.Context())
	if err != nil {
		slog.Error("failed to list datasets", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list datasets",
		})
		return
	}

	if infos == nil {
		infos = []*domain.DatasetInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": infos,
		"count":    len(infos),
	})
}

// DeleteDataset handles DELETE /datasets/{id}.
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file id is required",
		})
		return
	}

	if err := h.repo.DeleteDataset(ctx, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "dataset not found",
			})
			return
		}
		slog.Error("failed to delete dataset", "file_id", fileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete dataset",
		})
		return
	}

	// Drop any cached report for this dataset
	if h.cache != nil {
		_ = h.cache.Delete(ctx, "report:"+fileID)
	}

	slog.Info("dataset deleted", "file_id", fileID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "dataset deleted",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded screening rules.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.screen.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a screening rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.screen.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and reason are required",
		})
		return
	}

	ruleConfig := &domain.ScreenRuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.screen.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreenRule(ctx, ruleConfig); err != nil {
			slog.Error("failed to save screening rule", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screening rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all screening rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreenRules(ctx)
	if err != nil {
		slog.Error("failed to list screening rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screen.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
