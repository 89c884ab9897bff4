package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   byte
	}{
		{"up", ActionUp, 0x01},
		{"down", ActionDown, 0x02},
		{"left", ActionLeft, 0x03},
		{"right", ActionRight, 0x04},
		{"reset", ActionReset, 0x05},
		{"zero value degrades to sentinel", Action(0), 0x00},
		{"out of range degrades to sentinel", Action(42), 0x00},
		{"negative degrades to sentinel", Action(-1), 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.action))
		})
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "up", ActionUp.String())
	assert.Equal(t, "reset", ActionReset.String())
	assert.Equal(t, "unknown", Action(99).String())
}
