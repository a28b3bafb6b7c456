package refresh

import (
	"encoding/hex"
	"testing"
)

func TestNewSecretHashMatches(t *testing.T) {
	secret, hash, err := NewSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	if err := Validate(secret); err != nil {
		t.Fatalf("generated secret failed validation: %v", err)
	}
	if hash != Hash(secret) {
		t.Fatal("hash returned by NewSecret does not match Hash(secret)")
	}
	if raw, err := hex.DecodeString(hash); err != nil || len(raw) != 32 {
		t.Fatalf("hash is not hex sha256: %q", hash)
	}
}

func TestNewSecretUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		secret, _, err := NewSecret()
		if err != nil {
			t.Fatalf("new secret: %v", err)
		}
		if _, dup := seen[secret]; dup {
			t.Fatal("duplicate refresh secret generated")
		}
		seen[secret] = struct{}{}
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash("abc") != Hash("abc") {
		t.Fatal("hash is not deterministic")
	}
	if Hash("abc") == Hash("abd") {
		t.Fatal("distinct inputs hashed equal")
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"short",
		"!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!",
	}
	for _, c := range cases {
		if err := Validate(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

// FuzzValidate checks Validate never panics and only accepts 48-byte secrets.
func FuzzValidate(f *testing.F) {
	if secret, _, err := NewSecret(); err == nil {
		f.Add(secret)
	}
	f.Add("")
	f.Add("aGVsbG8")
	f.Add("!!!not-base64!!!")

	f.Fuzz(func(t *testing.T, input string) {
		if err := Validate(input); err != nil {
			return
		}
		if len(input) != 64 {
			t.Fatalf("accepted secret of length %d", len(input))
		}
	})
}
