package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs string
	}{
		{"quit", "quit", ""},
		{":quit", "quit", ""},
		{"  OPEN alex_92 ", "open", "alex_92"},
		{"open  alex_92", "open", "alex_92"},
		{"search hello world", "search", "hello world"},
	}

	for _, tt := range tests {
		got := ParseCommand(tt.input)
		if got.Name != tt.wantName || got.Args != tt.wantArgs {
			t.Errorf("ParseCommand(%q) = %q/%q, want %q/%q",
				tt.input, got.Name, got.Args, tt.wantName, tt.wantArgs)
		}
	}
}
