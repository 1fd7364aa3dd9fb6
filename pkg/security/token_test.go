package security_test

import (
	"testing"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/security"
)

func TestGenerateAccessToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		token, err := security.GenerateAccessToken()
		if err != nil {
			t.Fatalf("GenerateAccessToken returned error: %v", err)
		}
		if token == "" {
			t.Fatal("GenerateAccessToken returned empty string")
		}
		if seen[token] {
			t.Fatalf("token %q repeated", token)
		}
		seen[token] = true
	}
}
