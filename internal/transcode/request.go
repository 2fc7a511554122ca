// Package transcode turns processing requests into transcoder argument
// vectors, correcting container/codec mismatches and applying hardware
// encoder substitution.
package transcode

// Resolution is an optional output resolution.
type Resolution struct {
	Width           int  `json:"width"`
	Height          int  `json:"height"`
	KeepAspectRatio bool `json:"keepAspectRatio"`
}

// Request carries the user-selected processing parameters. Field names match
// the JSON body of the process endpoint.
type Request struct {
	Files                   []string    `json:"files"`
	Container               string      `json:"container"`
	StartTime               float64     `json:"startTime"`
	EndTime                 float64     `json:"endTime"`
	TotalDuration           float64     `json:"totalDuration"`
	VideoCodec              string      `json:"videoCodec"`
	AudioCodec              string      `json:"audioCodec"`
	VideoBitrate            int         `json:"videoBitrate,omitempty"`
	AudioBitrate            int         `json:"audioBitrate,omitempty"`
	Resolution              *Resolution `json:"resolution,omitempty"`
	UseHardwareAcceleration bool        `json:"useHardwareAcceleration"`
	Preset                  string      `json:"preset"`
}

// Trimmed reports whether the request clips the source in time.
func (r *Request) Trimmed() bool {
	return r.StartTime > 0 || r.EndTime < r.TotalDuration
}
