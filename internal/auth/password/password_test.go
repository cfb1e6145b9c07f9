package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hasher := Bcrypt{Cost: bcrypt.MinCost}

	hashed, err := hasher.Hash("Secr3t!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hashed == "Secr3t!" {
		t.Fatal("hash must not equal plaintext")
	}
	if !hasher.Verify("Secr3t!", hashed) {
		t.Fatal("expected password to verify")
	}
	if hasher.Verify("wrong", hashed) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if Verify("anything", "not-a-bcrypt-hash") {
		t.Fatal("expected malformed hash to fail")
	}
}

func TestDefaultHasherUsesCost12(t *testing.T) {
	hashed, err := NewHasher().Hash("Secr3t!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hashed))
	if err != nil {
		t.Fatalf("cost failed: %v", err)
	}
	if cost != DefaultCost {
		t.Fatalf("expected cost %d, got %d", DefaultCost, cost)
	}
}
