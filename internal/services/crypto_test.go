package services_test

import (
	"errors"
	"testing"

	"github.com/pandeptwidyaop/modbackup/internal/services"
)

func TestCryptoService_RoundTrip(t *testing.T) {
	svc, err := services.NewCryptoServiceFromHex(testKey)
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}

	enc, err := svc.Encrypt("p@ssw0rd")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if enc == "p@ssw0rd" {
		t.Error("ciphertext should differ from plaintext")
	}

	again, _ := svc.Encrypt("p@ssw0rd")
	if again == enc {
		t.Error("expected a fresh nonce per encryption")
	}

	dec, err := svc.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if dec != "p@ssw0rd" {
		t.Errorf("expected p@ssw0rd, got %q", dec)
	}
}

func TestCryptoService_InvalidInput(t *testing.T) {
	if _, err := services.NewCryptoServiceFromHex("abcd"); !errors.Is(err, services.ErrInvalidKeyLength) {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := services.NewCryptoServiceFromHex("not-hex"); err == nil {
		t.Error("expected error for non-hex key")
	}

	svc, _ := services.NewCryptoServiceFromHex(testKey)
	for _, in := range []string{"!!!", "", "YWJj"} {
		if _, err := svc.Decrypt(in); !errors.Is(err, services.ErrInvalidCipher) {
			t.Errorf("Decrypt(%q): expected ErrInvalidCipher, got %v", in, err)
		}
	}
}
