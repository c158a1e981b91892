package auth

import "testing"

func TestNewSessionTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token := NewSessionToken()
		if len(token) != 32 {
			t.Fatalf("expected 32 hex chars, got %d (%q)", len(token), token)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestVerifyAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		wantErr    bool
	}{
		{"match", "secret-token", "secret-token", false},
		{"match with whitespace", "secret-token", "  secret-token  ", false},
		{"mismatch", "secret-token", "wrong-token", true},
		{"empty presented", "secret-token", "", true},
		{"empty configured disables admin", "", "anything", true},
		{"both empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyAdminToken(tt.configured, tt.presented)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyAdminToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
