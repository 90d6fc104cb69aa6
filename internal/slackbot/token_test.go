package slackbot

import "testing"

func TestIsTokenShaped(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"c84b85ea-5338-4331-9cb2-e6685fd78369", true},
		{"c84b85ea5338-4331-9cb2e6685fd78369xx", false}, // 36 chars, 2 hyphens
		{"c84b85ea-5338-4331-9cb2-e6685fd7836", false},
		{"a-b-c-d-e", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsTokenShaped(tc.in); got != tc.want {
			t.Errorf("IsTokenShaped(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDerivedTokenIsStableAndShaped(t *testing.T) {
	a := DerivedToken("A1", "T1", "U1")
	if a != DerivedToken("A1", "T1", "U1") {
		t.Fatalf("expected stable derived token")
	}
	if a == DerivedToken("A1", "T1", "U2") {
		t.Fatalf("expected distinct users to get distinct tokens")
	}
	if !IsTokenShaped(a) {
		t.Fatalf("expected derived token to be token shaped, got %q", a)
	}
}

func TestParseTokenMode(t *testing.T) {
	for raw, want := range map[string]TokenMode{"": TokenShared, "shared": TokenShared, "DERIVED": TokenDerived} {
		got, err := ParseTokenMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseTokenMode(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseTokenMode("per-user"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
