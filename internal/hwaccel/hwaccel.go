// Package hwaccel probes the host for hardware-accelerated encoders.
// Detection is expensive, so the result is computed once and cached for the
// process lifetime; warm it at startup rather than on the request path.
package hwaccel

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/observability"
)

// Vendor identifies a hardware acceleration vendor.
type Vendor string

const (
	VendorNone   Vendor = "none"
	VendorNvidia Vendor = "nvidia"
	VendorAMD    Vendor = "amd"
	VendorIntel  Vendor = "intel"
	VendorVAAPI  Vendor = "vaapi"
	VendorApple  Vendor = "apple"
)

// vendorPriority is the fixed preference order when several GPUs are present.
var vendorPriority = []Vendor{VendorNvidia, VendorAMD, VendorIntel, VendorVAAPI, VendorApple}

// Profile describes the hardware encoding capability of the host.
type Profile struct {
	Vendor Vendor `json:"vendor"`
	// Encoders maps software encoder names to their vendor-specific
	// counterparts, e.g. libx264 -> h264_nvenc.
	Encoders map[string]string `json:"encoders,omitempty"`
	// HWAccelFlag is the value for ffmpeg's input-side -hwaccel option
	// (cuda, qsv); empty when the vendor takes no input-side flag.
	HWAccelFlag string `json:"hwaccel_flag,omitempty"`
	// HWAccelOutputFormat pairs with HWAccelFlag as -hwaccel_output_format.
	HWAccelOutputFormat string `json:"hwaccel_output_format,omitempty"`
	// ScaleFilter is the GPU-side scaler (scale_cuda, scale_qsv); empty when
	// scaling happens in software.
	ScaleFilter string    `json:"scale_filter,omitempty"`
	DeviceName  string    `json:"device_name,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

// HasHardware reports whether any hardware encoder is usable.
func (p *Profile) HasHardware() bool {
	return p != nil && p.Vendor != VendorNone && len(p.Encoders) > 0
}

// HardwareEncoder returns the vendor-specific encoder for a software encoder
// name, or the input unchanged when no substitution exists.
func (p *Profile) HardwareEncoder(software string) string {
	if p == nil {
		return software
	}
	if hw, ok := p.Encoders[software]; ok {
		return hw
	}
	return software
}

// vendorEncoderMaps lists the software->hardware encoder substitutions each
// vendor offers. The probe trims entries the local ffmpeg build lacks.
var vendorEncoderMaps = map[Vendor]map[string]string{
	VendorNvidia: {
		"libx264":    "h264_nvenc",
		"libx265":    "hevc_nvenc",
		"libaom-av1": "av1_nvenc",
	},
	VendorAMD: {
		"libx264":    "h264_amf",
		"libx265":    "hevc_amf",
		"libaom-av1": "av1_amf",
	},
	VendorIntel: {
		"libx264":    "h264_qsv",
		"libx265":    "hevc_qsv",
		"libaom-av1": "av1_qsv",
	},
	VendorVAAPI: {
		"libx264": "h264_vaapi",
		"libx265": "hevc_vaapi",
	},
	VendorApple: {
		"libx264": "h264_videotoolbox",
		"libx265": "hevc_videotoolbox",
	},
}

// buildProfile assembles the full profile for a confirmed vendor.
func buildProfile(vendor Vendor, encoders map[string]string, device string) *Profile {
	p := &Profile{
		Vendor:     vendor,
		Encoders:   encoders,
		DeviceName: device,
		DetectedAt: time.Now(),
	}
	switch vendor {
	case VendorNvidia:
		p.HWAccelFlag = "cuda"
		p.HWAccelOutputFormat = "cuda"
		p.ScaleFilter = "scale_cuda"
	case VendorIntel:
		p.HWAccelFlag = "qsv"
		p.HWAccelOutputFormat = "qsv"
		p.ScaleFilter = "scale_qsv"
	}
	return p
}

// noneProfile is returned when no usable hardware is present.
func noneProfile() *Profile {
	return &Profile{Vendor: VendorNone, DetectedAt: time.Now()}
}

// Detector probes for hardware capabilities and caches the result.
type Detector struct {
	ffmpegPath string
	enabled    bool
	override   Vendor
	logger     *slog.Logger

	mu     sync.Mutex
	cached *Profile
}

// NewDetector creates a Detector from transcoder configuration.
func NewDetector(cfg config.TranscoderConfig, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Detector{
		ffmpegPath: ffmpegPath,
		enabled:    cfg.HardwareDetection,
		override:   Vendor(cfg.HardwareOverride),
		logger:     observability.WithComponent(log, "hwaccel"),
	}
}

// Detect returns the host capability profile. It never fails: absence of
// hardware (or any probe error) yields vendor=none. The first call performs
// the probe; subsequent calls return the cached result.
func (d *Detector) Detect(ctx context.Context) *Profile {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil {
		return d.cached
	}

	d.cached = d.probe(ctx)
	d.logger.Info("hardware capability detected",
		slog.String("vendor", string(d.cached.Vendor)),
		slog.String("device", d.cached.DeviceName),
		slog.Int("encoders", len(d.cached.Encoders)))
	return d.cached
}

// Reset clears the cached profile so the next Detect probes again.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
}

func (d *Detector) probe(ctx context.Context) *Profile {
	if d.override != "" {
		if d.override == VendorNone {
			return noneProfile()
		}
		return buildProfile(d.override, vendorEncoderMaps[d.override], "")
	}
	if !d.enabled {
		return noneProfile()
	}

	candidates := d.enumerateGPUs(ctx)
	if len(candidates) == 0 {
		return noneProfile()
	}

	available := d.availableEncoders(ctx)

	for _, vendor := range vendorPriority {
		device, present := candidates[vendor]
		if !present {
			continue
		}
		confirmed := map[string]string{}
		for software, hw := range vendorEncoderMaps[vendor] {
			if available[hw] {
				confirmed[software] = hw
			}
		}
		if len(confirmed) == 0 {
			continue
		}
		return buildProfile(vendor, confirmed, device)
	}

	return noneProfile()
}

// enumerateGPUs finds candidate GPU vendors via platform-specific sources.
// The returned map carries a best-effort device name per vendor.
func (d *Detector) enumerateGPUs(ctx context.Context) map[Vendor]string {
	candidates := map[Vendor]string{}

	if name := detectNvidiaSMI(ctx); name != "" {
		candidates[VendorNvidia] = name
	}

	switch runtime.GOOS {
	case "linux":
		for vendor, device := range enumerateDRMNodes() {
			if _, seen := candidates[vendor]; !seen {
				candidates[vendor] = device
			}
		}
	case "darwin":
		for vendor, device := range detectDarwinGPUs(ctx) {
			if _, seen := candidates[vendor]; !seen {
				candidates[vendor] = device
			}
		}
	}

	return candidates
}

// detectNvidiaSMI queries nvidia-smi for the first GPU name.
func detectNvidiaSMI(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

// PCI vendor IDs as exposed by sysfs.
const (
	pciVendorNvidia = "0x10de"
	pciVendorAMD    = "0x1002"
	pciVendorIntel  = "0x8086"
)

// enumerateDRMNodes inspects /dev/dri render nodes and maps them to vendors
// via their sysfs PCI vendor id. Any render node also marks generic VAAPI as
// a candidate.
func enumerateDRMNodes() map[Vendor]string {
	candidates := map[Vendor]string{}

	nodes, _ := filepath.Glob("/dev/dri/renderD*")
	for _, node := range nodes {
		if _, seen := candidates[VendorVAAPI]; !seen {
			candidates[VendorVAAPI] = node
		}

		vendorFile := filepath.Join("/sys/class/drm", filepath.Base(node), "device", "vendor")
		data, err := os.ReadFile(vendorFile)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case pciVendorNvidia:
			candidates[VendorNvidia] = node
		case pciVendorAMD:
			candidates[VendorAMD] = node
		case pciVendorIntel:
			candidates[VendorIntel] = node
		}
	}

	return candidates
}

// detectDarwinGPUs parses system_profiler output for GPU chipset models.
func detectDarwinGPUs(ctx context.Context) map[Vendor]string {
	candidates := map[Vendor]string{}

	cmd := exec.CommandContext(ctx, "system_profiler", "SPDisplaysDataType")
	output, err := cmd.Output()
	if err != nil {
		return candidates
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Chipset Model:") {
			continue
		}
		model := strings.TrimSpace(strings.TrimPrefix(line, "Chipset Model:"))
		lower := strings.ToLower(model)
		switch {
		case strings.Contains(lower, "apple"):
			candidates[VendorApple] = model
		case strings.Contains(lower, "amd") || strings.Contains(lower, "radeon"):
			candidates[VendorAMD] = model
		case strings.Contains(lower, "intel"):
			candidates[VendorIntel] = model
		case strings.Contains(lower, "nvidia") || strings.Contains(lower, "geforce"):
			candidates[VendorNvidia] = model
		}
	}

	// VideoToolbox covers every Mac GPU.
	if len(candidates) > 0 {
		if _, seen := candidates[VendorApple]; !seen {
			for _, model := range candidates {
				candidates[VendorApple] = model
				break
			}
		}
	}

	return candidates
}

var encoderLineRe = regexp.MustCompile(`^\s*[VAS][F.][S.][X.][B.][D.]\s+(\S+)\s+`)

// availableEncoders parses ffmpeg -encoders into a set of encoder names.
func (d *Detector) availableEncoders(ctx context.Context) map[string]bool {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		d.logger.Warn("failed to list encoders", slog.Any("error", err))
		return nil
	}
	return parseEncoderList(string(output))
}

func parseEncoderList(output string) map[string]bool {
	encoders := map[string]bool{}
	for _, line := range strings.Split(output, "\n") {
		if matches := encoderLineRe.FindStringSubmatch(line); len(matches) > 1 {
			encoders[matches[1]] = true
		}
	}
	return encoders
}
