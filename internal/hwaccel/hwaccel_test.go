package hwaccel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/internal/config"
)

func TestDetect_OverrideVendor(t *testing.T) {
	d := NewDetector(config.TranscoderConfig{
		HardwareDetection: true,
		HardwareOverride:  "nvidia",
	}, nil)

	profile := d.Detect(context.Background())
	require.NotNil(t, profile)
	assert.Equal(t, VendorNvidia, profile.Vendor)
	assert.Equal(t, "h264_nvenc", profile.HardwareEncoder("libx264"))
	assert.Equal(t, "hevc_nvenc", profile.HardwareEncoder("libx265"))
	assert.Equal(t, "cuda", profile.HWAccelFlag)
	assert.Equal(t, "cuda", profile.HWAccelOutputFormat)
	assert.Equal(t, "scale_cuda", profile.ScaleFilter)
	assert.True(t, profile.HasHardware())
}

func TestDetect_OverrideNone(t *testing.T) {
	d := NewDetector(config.TranscoderConfig{
		HardwareDetection: true,
		HardwareOverride:  "none",
	}, nil)

	profile := d.Detect(context.Background())
	require.NotNil(t, profile)
	assert.Equal(t, VendorNone, profile.Vendor)
	assert.False(t, profile.HasHardware())
}

func TestDetect_DetectionDisabled(t *testing.T) {
	d := NewDetector(config.TranscoderConfig{HardwareDetection: false}, nil)

	profile := d.Detect(context.Background())
	require.NotNil(t, profile)
	assert.Equal(t, VendorNone, profile.Vendor)
}

func TestDetect_Cached(t *testing.T) {
	d := NewDetector(config.TranscoderConfig{
		HardwareDetection: true,
		HardwareOverride:  "intel",
	}, nil)

	first := d.Detect(context.Background())
	second := d.Detect(context.Background())
	assert.Same(t, first, second)

	d.Reset()
	third := d.Detect(context.Background())
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Vendor, third.Vendor)
}

func TestDetect_NeverFails(t *testing.T) {
	// A bogus binary path must still yield a profile, not an error.
	d := NewDetector(config.TranscoderConfig{
		FFmpegPath:        "/nonexistent/ffmpeg",
		HardwareDetection: true,
	}, nil)

	profile := d.Detect(context.Background())
	require.NotNil(t, profile)
	assert.Contains(t, []Vendor{
		VendorNone, VendorNvidia, VendorAMD, VendorIntel, VendorVAAPI, VendorApple,
	}, profile.Vendor)
}

func TestProfile_HardwareEncoder_PassThrough(t *testing.T) {
	profile := buildProfile(VendorIntel, map[string]string{"libx264": "h264_qsv"}, "")

	assert.Equal(t, "h264_qsv", profile.HardwareEncoder("libx264"))
	assert.Equal(t, "libvpx-vp9", profile.HardwareEncoder("libvpx-vp9"))
	assert.Equal(t, "qsv", profile.HWAccelFlag)
	assert.Equal(t, "scale_qsv", profile.ScaleFilter)
}

func TestProfile_NoInputFlagForAMDAppleVAAPI(t *testing.T) {
	for _, vendor := range []Vendor{VendorAMD, VendorApple, VendorVAAPI} {
		profile := buildProfile(vendor, vendorEncoderMaps[vendor], "")
		assert.Empty(t, profile.HWAccelFlag, "vendor %s", vendor)
		assert.Empty(t, profile.ScaleFilter, "vendor %s", vendor)
	}
}

func TestParseEncoderList(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D hevc_nvenc           NVIDIA NVENC hevc encoder (codec hevc)
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)
`
	encoders := parseEncoderList(output)
	assert.True(t, encoders["libx264"])
	assert.True(t, encoders["h264_nvenc"])
	assert.True(t, encoders["hevc_nvenc"])
	assert.True(t, encoders["aac"])
	assert.True(t, encoders["libmp3lame"])
	assert.False(t, encoders["h264_qsv"])
}
