package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, false)
	l.Infof("hello %d", 1)
	l.Debugf("hidden")
	l.Errorf("bad %s", "thing")

	assert.Equal(t, "[INFO]\thello 1\n[ERROR]\tbad thing\n", buf.String())

	buf.Reset()
	NewWithWriter(&buf, true).Debugf("shown")
	assert.Equal(t, "[DEBUG]\tshown\n", buf.String())
}
