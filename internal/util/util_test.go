package util

import (
	"crypto/tls"
	"testing"
)

func TestNormalize(t *testing.T) {
	// Composed and decomposed spellings of the same name must collapse
	// to one form.
	composed := "café"
	decomposed := "café"
	if Normalize(composed) != Normalize(decomposed) {
		t.Errorf("expected %q and %q to normalize identically", composed, decomposed)
	}
	if Normalize("plain") != "plain" {
		t.Errorf("ASCII input should be unchanged")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b, err := RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("expected 16 bytes")
	}
	if string(a) == string(b) {
		t.Errorf("two random draws should differ")
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert failed: %v", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if len(cfg.Certificates[0].Certificate) == 0 {
		t.Error("expected certificate DER bytes")
	}
}
