package dlinject

import (
	"testing"

	"github.com/rosslwheeler/ualink-go/pkg/dl"
)

func TestInjectorDisabledByDefault(t *testing.T) {
	in := NewInjector()
	in.SetPolicy(func() ErrorType { return ErrPacketDrop })
	if in.IsEnabled() {
		t.Fatal("Injector should start disabled")
	}
	if in.GetNextError() != ErrNone {
		t.Fatal("disabled injector should report ErrNone regardless of policy")
	}
	in.Enable()
	if in.GetNextError() != ErrPacketDrop {
		t.Fatal("enabled injector should consult its policy")
	}
	in.Disable()
	if in.GetNextError() != ErrNone {
		t.Fatal("disabled injector should ignore its policy again")
	}
}

func TestInjectErrorCorruptsCrcOnly(t *testing.T) {
	in := NewInjector()
	var flit dl.Flit
	flit.Crc = [4]byte{0x11, 0x22, 0x33, 0x44}

	corrupted := in.InjectError(flit, ErrCrcCorruption)
	if corrupted.Crc[0] == flit.Crc[0] || corrupted.Crc[1] == flit.Crc[1] {
		t.Fatal("CrcCorruption should flip the first two CRC bytes")
	}
	if corrupted.Crc[2] != flit.Crc[2] || corrupted.Crc[3] != flit.Crc[3] {
		t.Fatal("CrcCorruption should leave the last two CRC bytes untouched")
	}

	unchanged := in.InjectError(flit, ErrPacketDrop)
	if unchanged != flit {
		t.Fatal("non-CRC error types should return the flit unmodified")
	}
}

func TestShouldDropFlitTracksPolicy(t *testing.T) {
	in := NewInjector()
	in.Enable()
	in.SetPolicy(func() ErrorType { return ErrPacketDrop })
	if !in.ShouldDropFlit() {
		t.Fatal("expected ShouldDropFlit to report true")
	}
	in.SetPolicy(func() ErrorType { return ErrNone })
	if in.ShouldDropFlit() {
		t.Fatal("expected ShouldDropFlit to report false")
	}
}

func TestModifySequenceDuplicateAndSkip(t *testing.T) {
	in := NewInjector()
	got := in.ModifySequence(5, ErrNone)
	if got != 5 {
		t.Fatalf("ModifySequence(5, None) = %d, want 5", got)
	}
	if dup := in.ModifySequence(6, ErrSequenceDup); dup != 5 {
		t.Fatalf("ModifySequence(6, Dup) = %d, want last seq 5", dup)
	}
	if skip := in.ModifySequence(10, ErrSequenceSkip); skip != 11 {
		t.Fatalf("ModifySequence(10, Skip) = %d, want 11", skip)
	}
}

func TestModifySequenceSkipWrapsAt511(t *testing.T) {
	in := NewInjector()
	if got := in.ModifySequence(511, ErrSequenceSkip); got != 1 {
		t.Fatalf("ModifySequence(511, Skip) = %d, want wrap to 1", got)
	}
}

func TestPeriodicPolicyFiresEveryPeriod(t *testing.T) {
	p := NewPeriodicPolicy(3, ErrCrcCorruption)
	var fired []int
	for i := 1; i <= 9; i++ {
		if p.Next() == ErrCrcCorruption {
			fired = append(fired, i)
		}
	}
	if len(fired) != 3 || fired[0] != 3 || fired[1] != 6 || fired[2] != 9 {
		t.Fatalf("fired at %v, want [3 6 9]", fired)
	}
	p.Reset()
	if p.Next() != ErrNone {
		t.Fatal("first call after Reset should not fire (counter restarts at 1)")
	}
}

func TestBurstPolicyFiresWithinWindow(t *testing.T) {
	p := NewBurstPolicy(3, 2, ErrPacketDrop)
	var got []ErrorType
	for i := 0; i < 6; i++ {
		got = append(got, p.Next())
	}
	want := []ErrorType{ErrNone, ErrNone, ErrPacketDrop, ErrPacketDrop, ErrNone, ErrNone}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %v, want %v", i+1, got[i], want[i])
		}
	}
}
