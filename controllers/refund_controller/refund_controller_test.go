package refund_controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRefundAmount(t *testing.T) {
	tests := []struct {
		name            string
		amount          float64
		paid            float64
		alreadyRefunded float64
		wantErr         error
	}{
		{"full refund", 100, 100, 0, nil},
		{"partial refund", 40, 100, 0, nil},
		{"second partial up to ceiling", 60, 100, 40, nil},
		{"zero amount", 0, 100, 0, ErrInvalidAmount},
		{"negative amount", -5, 100, 0, ErrInvalidAmount},
		{"exceeds paid", 101, 100, 0, ErrExceedsBalance},
		{"exceeds remaining balance", 61, 100, 40, ErrExceedsBalance},
		{"fully refunded already", 0.01, 100, 100, ErrExceedsBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRefundAmount(tt.amount, tt.paid, tt.alreadyRefunded)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
