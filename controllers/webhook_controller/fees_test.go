package webhook_controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinorToMajor(t *testing.T) {
	assert.Equal(t, 1.50, minorToMajor(150))
	assert.Equal(t, 0.01, minorToMajor(1))
	assert.Equal(t, 0.00, minorToMajor(0))
	assert.Equal(t, 1234.56, minorToMajor(123456))
}

func TestComputePlatformNet(t *testing.T) {
	assert.Equal(t, 13.50, computePlatformNet(5.00, 10.00, 1.50))

	// Gateway fee larger than platform revenue yields a negative net.
	assert.Equal(t, -0.50, computePlatformNet(0.50, 0.00, 1.00))

	// Binary float artifacts must round away: 0.1 + 0.2 - 0.0.
	assert.Equal(t, 0.30, computePlatformNet(0.1, 0.2, 0))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 2.68, round2(2.675000001))
	assert.Equal(t, 1.0, round2(0.999999999))
	assert.Equal(t, -1.23, round2(-1.2349))
}
