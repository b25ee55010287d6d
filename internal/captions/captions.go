// Package captions models timed captions and renders them as SRT or WebVTT
// subtitle text.
package captions

import (
	"fmt"
	"math"
	"strings"

	"cutline/internal/pkg/errors"
)

// Caption is one timed line of text. Start and End are seconds from the
// beginning of the video.
type Caption struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Style is the burn-in presentation the render worker applies.
type Style string

const (
	StyleBottomCentered Style = "bottom-centered"
	StyleTopBar         Style = "top-bar"
	StyleKaraoke        Style = "karaoke"
)

func (s Style) Valid() bool {
	switch s {
	case StyleBottomCentered, StyleTopBar, StyleKaraoke:
		return true
	}
	return false
}

// Format is a subtitle file format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// ParseFormat accepts "srt" or "vtt" in any case. Empty means srt.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	default:
		return "", errors.ValidationField("format", "format must be srt or vtt").WithField("value", s)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatVTT {
		return "text/vtt; charset=utf-8"
	}
	return "application/x-subrip; charset=utf-8"
}

// Validate checks that every caption has a non-negative, ordered time range.
func Validate(list []Caption) error {
	if len(list) == 0 {
		return errors.ValidationField("captions", "at least one caption is required")
	}
	for i, c := range list {
		if c.Start < 0 || c.End < c.Start || math.IsNaN(c.Start) || math.IsNaN(c.End) {
			return errors.ValidationField("captions", "caption end must not precede its start").
				WithField("index", i).
				WithField("id", c.ID)
		}
	}
	return nil
}

// Render formats list as f.
func Render(list []Caption, f Format) string {
	if f == FormatVTT {
		return ToVTT(list)
	}
	return ToSRT(list)
}

// ToSRT renders numbered SubRip cues separated by blank lines.
func ToSRT(list []Caption) string {
	var b strings.Builder
	for i, c := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, timestamp(c.Start, ','), timestamp(c.End, ','), c.Text)
	}
	return b.String()
}

// ToVTT renders a WebVTT document.
func ToVTT(list []Caption) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, c := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n", timestamp(c.Start, '.'), timestamp(c.End, '.'), c.Text)
	}
	return b.String()
}

// SidecarKey is the storage object key of a job's caption file.
func SidecarKey(jobID string, f Format) string {
	return "renders/" + jobID + "/captions." + string(f)
}

// timestamp formats seconds as HH:MM:SS<sep>mmm.
func timestamp(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
