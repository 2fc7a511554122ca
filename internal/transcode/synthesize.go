package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mediaforge/mediaforge/internal/hwaccel"
)

// audioOnlyContainers are containers that carry no video stream.
var audioOnlyContainers = map[string]bool{
	"mp3": true, "flac": true, "wav": true, "aac": true, "ogg": true,
}

// hwEncoderMarkers identify vendor-specific encoders; those bypass the
// software container compatibility tables.
var hwEncoderMarkers = []string{"nvenc", "qsv", "amf", "videotoolbox", "vaapi"}

// presetTokens maps the user-facing preset tags into each encoder family's
// own preset space. Apple and VAAPI encoders take no preset token.
var presetTokens = map[string]map[string]string{
	"nvidia": {"fast": "p1", "balanced": "p4", "quality": "p7"},
	"intel":  {"fast": "veryfast", "balanced": "medium", "quality": "veryslow"},
	"amd":    {"fast": "speed", "balanced": "balanced", "quality": "quality"},
	"cpu":    {"fast": "superfast", "balanced": "medium", "quality": "slow"},
}

// Plan is the synthesizer's output: the argument vector plus the paths and
// display name the coordinator needs for post-processing.
type Plan struct {
	// Args is the full transcoder argument vector, excluding the binary name.
	Args []string
	// DisplayCommand is a shell-printable rendering kept for diagnostics.
	DisplayCommand string
	// TempPath is where the transcoder writes; renamed to FinalPath on success.
	TempPath  string
	FinalPath string
	// FinalDisplayName is "{source_stem}_processed.{container}".
	FinalDisplayName string
}

// Synthesize builds the transcoder invocation for one source file. It never
// fails: incompatible codec/container combinations are silently corrected and
// unavailable hardware falls back to software encoding.
func Synthesize(sourcePath, sourceDisplayName string, req Request, profile *hwaccel.Profile) Plan {
	container := req.Container
	videoCodec := req.VideoCodec
	audioCodec := req.AudioCodec

	hwRequested := req.UseHardwareAcceleration && profile.HasHardware()

	if hwRequested && videoCodec != "copy" {
		videoCodec = profile.HardwareEncoder(videoCodec)
	}

	audioOnly := audioOnlyContainers[container]

	if !audioOnly && videoCodec != "copy" && !isHardwareEncoder(videoCodec) {
		switch container {
		case "mp4":
			if !containsString([]string{"libx264", "libx265", "libaom-av1"}, videoCodec) {
				videoCodec = "libx264"
			}
		case "mkv":
			if !containsString([]string{"libx264", "libx265", "libaom-av1", "vp9"}, videoCodec) {
				videoCodec = "libx264"
			}
		case "mov":
			if !containsString([]string{"libx264", "libx265"}, videoCodec) {
				videoCodec = "libx264"
			}
		}
	}

	if audioCodec != "copy" {
		switch {
		case (container == "mp4" || container == "mov") && !containsString([]string{"aac", "mp3"}, audioCodec):
			audioCodec = "aac"
		case container == "mkv" && !containsString([]string{"aac", "mp3", "opus", "flac"}, audioCodec):
			audioCodec = "aac"
		case container == "mp3":
			audioCodec = "libmp3lame"
		case container == "flac":
			audioCodec = "flac"
		case container == "aac":
			audioCodec = "aac"
		case container == "wav":
			audioCodec = "pcm_s16le"
		}
	}

	args := []string{"-y"}

	hwInput := hwRequested && profile.HWAccelFlag != ""
	if hwInput {
		args = append(args, "-hwaccel", profile.HWAccelFlag,
			"-hwaccel_output_format", profile.HWAccelOutputFormat)
	}

	args = append(args, "-analyzeduration", "100M", "-probesize", "100M", "-ignore_unknown")
	args = append(args, "-i", sourcePath)

	if req.StartTime > 0 {
		args = append(args, "-ss", formatSeconds(req.StartTime))
	}
	if req.EndTime < req.TotalDuration {
		args = append(args, "-to", formatSeconds(req.EndTime))
	}

	if audioOnly {
		args = append(args, "-vn", "-map", "0:a?")
	} else {
		args = append(args, "-map", "0:v?", "-map", "0:a?")
	}

	args = append(args, "-fflags", "+genpts")

	if !audioOnly {
		if videoCodec != "copy" {
			args = append(args, "-c:v", videoCodec)

			space := presetSpace(videoCodec)
			if tokens, ok := presetTokens[space]; ok {
				token, ok := tokens[req.Preset]
				if !ok {
					token = tokens["balanced"]
				}
				if space == "amd" {
					args = append(args, "-quality", token)
				} else {
					args = append(args, "-preset", token)
				}
			}

			if res := req.Resolution; res != nil {
				if hwInput && profile.ScaleFilter != "" && space != "cpu" {
					args = append(args, "-vf",
						fmt.Sprintf("%s=%d:%d", profile.ScaleFilter, res.Width, res.Height))
				} else {
					args = append(args, "-s", fmt.Sprintf("%dx%d", res.Width, res.Height))
				}
			}

			// Trimmed clips must open on a decodable frame.
			if req.Trimmed() {
				args = append(args, "-force_key_frames", "expr:eq(n,0)")
			}
			if req.VideoBitrate > 0 {
				args = append(args, "-b:v", fmt.Sprintf("%dk", req.VideoBitrate))
			}
		} else {
			args = append(args, "-c:v", "copy")
		}
	}

	if audioCodec != "copy" {
		args = append(args, "-c:a", audioCodec)
		if req.AudioBitrate > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", req.AudioBitrate))
		}
	} else {
		args = append(args, "-c:a", "copy")
	}

	dir := filepath.Dir(sourcePath)
	tempPath := filepath.Join(dir, uuid.NewString()+"."+container)
	finalPath := filepath.Join(dir, uuid.NewString()+"."+container)

	args = append(args, tempPath)

	stem := strings.TrimSuffix(sourceDisplayName, filepath.Ext(sourceDisplayName))

	return Plan{
		Args:             args,
		DisplayCommand:   renderCommand(args),
		TempPath:         tempPath,
		FinalPath:        finalPath,
		FinalDisplayName: fmt.Sprintf("%s_processed.%s", stem, container),
	}
}

// presetSpace classifies an encoder name into a preset vocabulary.
func presetSpace(codec string) string {
	switch {
	case strings.Contains(codec, "nvenc"):
		return "nvidia"
	case strings.Contains(codec, "qsv"):
		return "intel"
	case strings.Contains(codec, "amf"):
		return "amd"
	case strings.Contains(codec, "videotoolbox"):
		return "apple"
	case strings.Contains(codec, "vaapi"):
		return "vaapi"
	default:
		return "cpu"
	}
}

func isHardwareEncoder(codec string) bool {
	for _, marker := range hwEncoderMarkers {
		if strings.Contains(codec, marker) {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// formatSeconds renders a float seconds value without trailing zeros.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// renderCommand produces a shell-printable rendering of the invocation,
// including the transcoder binary name.
func renderCommand(args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, "ffmpeg")
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes an argument when it contains characters a POSIX
// shell would interpret.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]#~=%!{}`") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
