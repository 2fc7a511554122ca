package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mediaforge/mediaforge/internal/service"
)

// CapabilitiesHandler exposes the host's transcoding capability profile.
type CapabilitiesHandler struct {
	tasks *service.TaskService
}

// NewCapabilitiesHandler creates a new capabilities handler.
func NewCapabilitiesHandler(tasks *service.TaskService) *CapabilitiesHandler {
	return &CapabilitiesHandler{tasks: tasks}
}

// Register registers the capabilities route with the API.
func (h *CapabilitiesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCapabilities",
		Method:      "GET",
		Path:        "/api/capabilities",
		Summary:     "Get capabilities",
		Description: "Returns hardware acceleration support and host statistics",
		Tags:        []string{"System"},
		Security:    BearerSecurity,
	}, h.Get)
}

// HardwareCapabilities describes hardware acceleration support.
type HardwareCapabilities struct {
	Available  bool              `json:"available"`
	Vendor     string            `json:"vendor"`
	DeviceName string            `json:"device_name,omitempty"`
	Encoders   map[string]string `json:"encoders,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

// HostStats describes the host the transcoder runs on.
type HostStats struct {
	CPUCores          int     `json:"cpu_cores"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
}

// CapabilitiesInput is the input for the capabilities endpoint.
type CapabilitiesInput struct{}

// CapabilitiesOutput is the output for the capabilities endpoint.
type CapabilitiesOutput struct {
	Body struct {
		HardwareAcceleration HardwareCapabilities `json:"hardware_acceleration"`
		Host                 HostStats            `json:"host"`
	}
}

// Get returns the cached capability profile and current host statistics.
func (h *CapabilitiesHandler) Get(ctx context.Context, _ *CapabilitiesInput) (*CapabilitiesOutput, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}

	profile := h.tasks.Capabilities(ctx)

	resp := &CapabilitiesOutput{}
	resp.Body.HardwareAcceleration = HardwareCapabilities{
		Available:  profile.HasHardware(),
		Vendor:     string(profile.Vendor),
		DeviceName: profile.DeviceName,
		Encoders:   profile.Encoders,
		DetectedAt: profile.DetectedAt,
	}

	resp.Body.Host = HostStats{CPUCores: runtime.NumCPU()}
	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		resp.Body.Host.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		resp.Body.Host.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	return resp, nil
}
