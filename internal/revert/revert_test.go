package revert

import "testing"

func TestClassifyKnownSelector(t *testing.T) {
	c := Classify("0xb629b0e4")
	if c.Name != "InsufficientOutput" || c.Code != "dust_too_small" || c.Category != CategoryExecutor {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyWithoutPrefix(t *testing.T) {
	c := Classify("b629b0e400000000")
	if c.Code != "dust_too_small" {
		t.Fatalf("expected dust_too_small, got %+v", c)
	}
}

func TestClassifyUnknownSelector(t *testing.T) {
	c := Classify("0xdeadbeef")
	if c.Category != CategoryUnknown {
		t.Fatalf("expected unknown category, got %+v", c)
	}
}

func TestClassifyTooShort(t *testing.T) {
	c := Classify("0xab")
	if c.Category != CategoryUnknown {
		t.Fatalf("expected unknown for short data, got %+v", c)
	}
}

func TestClassifyBytes(t *testing.T) {
	c := ClassifyBytes([]byte{0xb6, 0x29, 0xb0, 0xe4, 0x01})
	if c.Code != "dust_too_small" {
		t.Fatalf("expected dust_too_small, got %+v", c)
	}
}
