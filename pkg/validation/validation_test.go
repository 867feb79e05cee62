package validation

import (
	"strings"
	"testing"
)

func TestValidateSourceName(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"machine and source", "STUDIO (Cam A)", false},
		{"unicode", "ÉTAGE-2 (Caméra)", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"control character", "STUDIO (Cam\x00A)", true},
		{"newline", "STUDIO\n(Cam A)", true},
		{"invalid utf8", "STUDIO \xff", true},
		{"too long", strings.Repeat("a", MaxSourceNameLength+1), true},
		{"max length", strings.Repeat("a", MaxSourceNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceName(tt.source)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateInstanceID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"hostname and suffix", "studio-a-3f9c1e2d", false},
		{"dotted", "edge.local", false},
		{"empty", "", true},
		{"space", "edge 1", true},
		{"separator", "edge:1", true},
		{"too long", strings.Repeat("a", MaxInstanceIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstanceID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"empty", "", false},
		{"ipv4", "192.168.1.20:5961", false},
		{"ipv6", "[fe80::1]:5961", false},
		{"hostname", "cam-a.local:5961", false},
		{"missing port", "192.168.1.20", true},
		{"missing host", ":5961", true},
		{"port zero", "192.168.1.20:0", true},
		{"port out of range", "192.168.1.20:70000", true},
		{"named port", "192.168.1.20:ndi", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
