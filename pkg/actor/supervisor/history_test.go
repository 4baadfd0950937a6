package supervisor

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRestartHistory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var h restartHistory

	assert.Equal(t, 1, h.add(clock, time.Second))
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, h.add(clock, time.Second))
	clock.Advance(600 * time.Millisecond)
	// The first restart is now older than the window.
	assert.Equal(t, 2, h.add(clock, time.Second))
	clock.Advance(time.Hour)
	assert.Equal(t, 1, h.add(clock, time.Second))
}
