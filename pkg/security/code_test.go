package security_test

import (
	"testing"

	"github.com/angelmondragon/catalogsync/pkg/security"
)

func TestHashAndVerifyCode(t *testing.T) {
	hash, err := security.HashCode("482913", security.CodeParams)
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashCode returned empty string")
	}

	ok, err := security.VerifyCode("482913", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyCode failed for the correct code")
	}

	ok, err = security.VerifyCode("482914", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for wrong code: %v", err)
	}
	if ok {
		t.Fatal("VerifyCode returned true for incorrect code")
	}
}

func TestHashCodeRejectsEmpty(t *testing.T) {
	if _, err := security.HashCode("", security.CodeParams); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifyCodeBadHash(t *testing.T) {
	for _, encoded := range []string{"not-a-hash", "$argon2id$v=19$m=x,t=1,p=1$AAAA$AAAA", "$bcrypt$v=19$m=8,t=1,p=1$AAAA$AAAA"} {
		if _, err := security.VerifyCode("irrelevant", encoded); err == nil {
			t.Fatalf("expected error for malformed hash %q", encoded)
		}
	}
}

func TestGenerateDigits(t *testing.T) {
	code, err := security.GenerateDigits(6)
	if err != nil {
		t.Fatalf("GenerateDigits returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("unexpected rune %q in %q", r, code)
		}
	}
	if _, err := security.GenerateDigits(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
