package crc

import "testing"

func TestKnownVector(t *testing.T) {
	got := Compute([]byte("123456789"))
	want := [4]byte{0xFC, 0x89, 0x19, 0x18}
	if got != want {
		t.Fatalf("Compute = %x, want %x", got, want)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := Compute(data)
	if !Verify(data, sum) {
		t.Fatal("Verify rejected a matching sum")
	}
	corrupt := sum
	corrupt[0] ^= 0xFF
	if Verify(data, corrupt) {
		t.Fatal("Verify accepted a corrupted sum")
	}
}

func TestEmptyInput(t *testing.T) {
	got := Compute(nil)
	want := [4]byte{0x00, 0x00, 0x00, 0x00}
	if got != want {
		t.Fatalf("Compute(nil) = %x, want %x", got, want)
	}
}
