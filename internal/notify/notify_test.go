package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordingCapturesFormattedLines(t *testing.T) {
	r := &Recording{}
	r.Success("merged %d branches", 3)
	r.Warn("%s left in place", "workspace")

	assert.Equal(t, []string{"success: merged 3 branches", "warn: workspace left in place"}, r.Lines)
}
