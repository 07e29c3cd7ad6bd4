package profile

import "testing"

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"main", false},
		{"work-account", false},
		{"a_b_1", false},
		{"", true},
		{"Has-Upper", true},
		{"spaces here", true},
		{"dots.bad", true},
		{"waytoolongwaytoolongwaytoolongwaytoolongwaytoolongwaytoolongwaytoolong", true},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
