package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

var testCodes = []interview.ClosingCode{
	{Code: "5j3k", Message: "Problematic content."},
	{Code: "x7y8", Message: "Thanks, that was the last question."},
}

func TestDetectEachKnownCode(t *testing.T) {
	d := NewDetector(testCodes)

	for _, want := range testCodes {
		t.Run(want.Code, func(t *testing.T) {
			got, ok := d.Detect("some text " + want.Code + " trailing")
			assert.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestDetectNoMatch(t *testing.T) {
	d := NewDetector(testCodes)

	_, ok := d.Detect("Thank you, could you tell me more about your role?")
	assert.False(t, ok)

	_, ok = d.Detect("")
	assert.False(t, ok)
}

func TestDetectIsCaseSensitive(t *testing.T) {
	d := NewDetector(testCodes)

	_, ok := d.Detect("X7Y8")
	assert.False(t, ok)
}

func TestDetectFirstConfiguredCodeWins(t *testing.T) {
	d := NewDetector(testCodes)

	got, ok := d.Detect("x7y8 and 5j3k")
	assert.True(t, ok)
	assert.Equal(t, "5j3k", got.Code)
}

func TestDetectSplitAcrossDeltasOnlyAfterJoin(t *testing.T) {
	d := NewDetector(testCodes)

	_, ok := d.Detect("x7")
	assert.False(t, ok)
	got, ok := d.Detect("x7" + "y8")
	assert.True(t, ok)
	assert.Equal(t, testCodes[1].Message, got.Message)
}

func TestNewDetectorSkipsEmptyCodes(t *testing.T) {
	d := NewDetector([]interview.ClosingCode{{Code: "", Message: "always"}, testCodes[0]})

	_, ok := d.Detect("ordinary text")
	assert.False(t, ok)
	got, ok := d.Detect("bye 5j3k")
	assert.True(t, ok)
	assert.Equal(t, testCodes[0].Code, got.Code)
}

func TestNilDetector(t *testing.T) {
	var d *Detector
	_, ok := d.Detect("x7y8")
	assert.False(t, ok)
}
