package types

import (
	"testing"
)

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()

	if a.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if a == b {
		t.Error("Expected distinct IDs")
	}
	if _, err := ParseID(a.String()); err != nil {
		t.Errorf("Expected generated ID to parse, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"empty", "", true},
		{"garbage", "not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
