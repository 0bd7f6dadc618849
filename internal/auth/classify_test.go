// ABOUTME: Tests for shape-based credential classification
// ABOUTME: Verifies the prefix+underscore-count rule and its default

package auth

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  Kind
	}{
		{"well-formed api key", "carp_AbCd1234_EfGh5678_IjKl9012", KindAPIKey},
		{"api key with short segments", "carp_a_b_c", KindAPIKey},
		{"jwt", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.sig", KindSignedToken},
		{"empty", "", KindSignedToken},
		{"prefix only", "carp_", KindSignedToken},
		{"too few underscores", "carp_abcd_efgh", KindSignedToken},
		{"too many underscores", "carp_ab_cd_ef_gh", KindSignedToken},
		{"wrong prefix", "crap_abcd_efgh_ijkl", KindSignedToken},
		{"prefix not at start", "xcarp_abcd_efgh_ijkl", KindSignedToken},
		{"uppercase prefix", "CARP_abcd_efgh_ijkl", KindSignedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.token); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestGeneratedKeysClassifyAsAPIKeys(t *testing.T) {
	for i := 0; i < 50; i++ {
		key, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey: %v", err)
		}
		if got := Classify(key); got != KindAPIKey {
			t.Fatalf("generated key %q classified as %v", key, got)
		}
	}
}
