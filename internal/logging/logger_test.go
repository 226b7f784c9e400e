package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "console", false},
		{"DEBUG", "json", false},
		{"warn", "", false},
		{"loud", "console", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		l, err := New(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
		}
		if err == nil && l == nil {
			t.Errorf("New(%q, %q) returned nil logger", tt.level, tt.format)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) must return a usable logger")
	}
	OrNop(nil).Info("discarded")
}
