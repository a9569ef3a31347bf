package credential

import "testing"

func TestMatches(t *testing.T) {
	d := Digest("s3cret")
	if len(d) != DigestSize {
		t.Fatalf("expected %d byte digest, got %d", DigestSize, len(d))
	}
	if !Matches("s3cret", d) {
		t.Fatal("expected match")
	}
	if Matches("wrong", d) {
		t.Fatal("unexpected match for wrong key")
	}
	if Matches("", Digest("")) {
		t.Fatal("empty key must never match")
	}
	if Matches("s3cret", d[:10]) {
		t.Fatal("truncated digest must not match")
	}
}
