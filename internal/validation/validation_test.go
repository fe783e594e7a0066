package validation

import (
	"strings"
	"testing"
)

func TestValidateSHA256(t *testing.T) {
	valid := strings.Repeat("0123456789abcdef", 4)

	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{"valid hash", valid, false},
		{"empty", "", true},
		{"too short", valid[:63], true},
		{"too long", valid + "0", true},
		{"uppercase hex", strings.ToUpper(valid), true},
		{"non-hex character", valid[:63] + "g", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSHA256(tt.hash)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSHA256(%q) error = %v, wantErr %v", tt.hash, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHostID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"hardware uuid", "4F2C9E72-1A3B-4C5D-8E9F-0A1B2C3D4E5F", false},
		{"assigned name", "build-agent_03.corp", false},
		{"empty", "", true},
		{"contains slash", "host/1", true},
		{"contains space", "host 1", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
