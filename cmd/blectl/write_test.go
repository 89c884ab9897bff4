package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWriteData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		asHex   bool
		want    []byte
		wantErr bool
	}{
		{"raw string", "high", false, []byte("high"), false},
		{"empty string", "", false, []byte{}, false},
		{"plain hex", "ff01", true, []byte{0xFF, 0x01}, false},
		{"hex with 0x prefix", "0xff01", true, []byte{0xFF, 0x01}, false},
		{"hex with separators", "ff:01-02 03", true, []byte{0xFF, 0x01, 0x02, 0x03}, false},
		{"odd-length hex", "ff0", true, nil, true},
		{"non-hex characters", "zz", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWriteData(tt.input, tt.asHex)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
