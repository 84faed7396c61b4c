package common

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestMakeRandHexString(t *testing.T) {
	for _, size := range []int{0, 1, 32} {
		s, err := MakeRandHexString(size)
		if err != nil {
			t.Fatalf("MakeRandHexString(%d) error: %v", size, err)
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			t.Fatalf("MakeRandHexString(%d) = %q is not hex: %v", size, s, err)
		}
		if len(raw) != size {
			t.Fatalf("MakeRandHexString(%d) decoded to %d bytes", size, len(raw))
		}
	}

	a, _ := MakeRandHexString(32)
	b, _ := MakeRandHexString(32)
	if a == b {
		t.Fatalf("two reset-sized tokens collided: %s", a)
	}
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(16)
	b := GenerateRandByteArray(16)
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("unexpected lengths: %d, %d", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two salts collided: %x", a)
	}
}

func TestWipeByteArray(t *testing.T) {
	pw := []byte("Str0ngPass!")
	WipeByteArray(pw)
	if !bytes.Equal(pw, make([]byte, len(pw))) {
		t.Fatalf("buffer not wiped: %v", pw)
	}

	WipeByteArray(nil)
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.COM":   "alice@example.com",
		"  bob@example.com\n": "bob@example.com",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
