// Package completion recognises the closing codes an interviewer embeds in
// its output to end the interview.
package completion

import (
	"strings"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// Detector scans assistant text for closing codes.
//
// Codes are matched as case-sensitive substrings. When several codes occur in
// the same text the one listed first wins, so the configuration order is the
// canonical tie-break.
type Detector struct {
	codes []interview.ClosingCode
}

// NewDetector returns a Detector over a copy of codes. Entries with an empty
// code are ignored since they would match every text.
func NewDetector(codes []interview.ClosingCode) *Detector {
	kept := make([]interview.ClosingCode, 0, len(codes))
	for _, c := range codes {
		if c.Code == "" {
			continue
		}
		kept = append(kept, c)
	}
	return &Detector{codes: kept}
}

// Detect returns the first closing code contained in text.
func (d *Detector) Detect(text string) (interview.ClosingCode, bool) {
	if d == nil || text == "" {
		return interview.ClosingCode{}, false
	}
	for _, c := range d.codes {
		if strings.Contains(text, c.Code) {
			return c, true
		}
	}
	return interview.ClosingCode{}, false
}
