package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"
)

// HealthHandler handles the liveness endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns liveness, database reachability, and host metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// DatabaseHealth describes the state of the database connection.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Load1Min      float64        `json:"load_1min"`
	MemoryUsedPct float64        `json:"memory_used_pct"`
	Database      DatabaseHealth `json:"database"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		UptimeSeconds: now.Sub(h.startTime).Seconds(),
		Database:      h.databaseHealth(ctx),
	}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		resp.Load1Min = loadAvg.Load1
	}
	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		resp.MemoryUsedPct = vmStat.UsedPercent
	}

	if resp.Database.Status == "error" {
		resp.Status = "degraded"
	}

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "unknown"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error"}
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health := DatabaseHealth{
		Status:         "ok",
		ResponseTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		health.Status = "error"
	}
	return health
}
