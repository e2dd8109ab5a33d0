package safepath

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestJoin(t *testing.T) {
	base := filepath.Join("/data", "uploads")

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain name", "photo.jpg", false},
		{"nested", "processed/photo.jpg", false},
		{"dotdot", "../db.json", true},
		{"hidden dotdot", "processed/../../db.json", true},
		{"absolute stays under base", "/etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Join(base, tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrTraversal) {
					t.Fatalf("err = %v, want ErrTraversal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rel, err := filepath.Rel(base, got)
			if err != nil || strings.HasPrefix(rel, "..") {
				t.Errorf("result %q escapes base", got)
			}
		})
	}
}
