package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "RECPIPE/Stitch", Stitch)
	assert.Equal(t, "RECPIPE/Inform", Inform)
	assert.Equal(t, "RECPIPE/StatusChange", StatusChange)
	assert.Equal(t, "RECPIPE/Fail", Fail)
}
