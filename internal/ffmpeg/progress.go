package ffmpeg

import (
	"math"
	"regexp"
	"strconv"
)

// timeTokenRe matches the transcoder's periodic time=H:M:S.cc stderr token.
// Hours and minutes are not guaranteed to be zero-padded.
var timeTokenRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

// parseElapsed extracts the elapsed seconds from a stderr line, returning
// false when the line carries no time token.
func parseElapsed(line string) (float64, bool) {
	matches := timeTokenRe.FindStringSubmatch(line)
	if matches == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	fraction, _ := strconv.ParseFloat("0."+matches[4], 64)

	return float64(hours*3600+minutes*60+seconds) + fraction, true
}

// progressPercent converts elapsed seconds into a progress percentage capped
// at 99; 100 is reserved for successful post-processing.
func progressPercent(elapsed, total float64) int {
	if total <= 0 {
		return -1
	}
	p := int(math.Floor(100 * elapsed / total))
	if p > 99 {
		p = 99
	}
	if p < 0 {
		p = 0
	}
	return p
}
