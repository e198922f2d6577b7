package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBytesMD5(t *testing.T) {
	if got := BytesMD5([]byte("abc")); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("BytesMD5 = %s", got)
	}
}

func TestReaderMD5Limit(t *testing.T) {
	data, sum, err := ReaderMD5(strings.NewReader("abc"), 3)
	if err != nil || string(data) != "abc" || sum != BytesMD5([]byte("abc")) {
		t.Errorf("ReaderMD5 = %q %s %v", data, sum, err)
	}
	if _, _, err := ReaderMD5(strings.NewReader("abcd"), 3); err == nil {
		t.Error("oversized content accepted")
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("IDs repeat")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("not a uuid: %v", err)
	}
	if ShortID(a) != a[:8] || ShortID("abc") != "abc" {
		t.Error("ShortID")
	}
}
