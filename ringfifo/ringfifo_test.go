// SPDX-License-Identifier: EPL-2.0

package ringfifo

import "testing"

func TestRoundCapacityRoundsDownToFrameMultiple(t *testing.T) {
	if got := RoundCapacity(1000, 96); got != 960 {
		t.Fatalf("RoundCapacity(1000,96) = %d, want 960", got)
	}
	if got := RoundCapacity(96, 96); got != 96 {
		t.Fatalf("RoundCapacity(96,96) = %d, want 96", got)
	}
}

func TestEmptyFifoOccupiedZero(t *testing.T) {
	f := New(make([]byte, 100), 10)
	if f.Occupied() != 0 {
		t.Fatalf("fresh Fifo Occupied() = %d, want 0", f.Occupied())
	}
	if f.Free() != f.Capacity()-1 {
		t.Fatalf("fresh Fifo Free() = %d, want %d", f.Free(), f.Capacity()-1)
	}
}

func TestWriteAtThenReadAtRoundTrip(t *testing.T) {
	f := New(make([]byte, 100), 10)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	n := f.WriteAt(data)
	if n != len(data) {
		t.Fatalf("WriteAt wrote %d, want %d", n, len(data))
	}
	if f.Occupied() != 10 {
		t.Fatalf("Occupied() after write = %d, want 10", f.Occupied())
	}

	dst := make([]byte, 10)
	got := f.ReadAt(dst)
	if got != 10 {
		t.Fatalf("ReadAt returned %d, want 10", got)
	}
	for i, v := range data {
		if dst[i] != v {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], v)
		}
	}
	// ReadAt does not advance Tail.
	if f.Occupied() != 10 {
		t.Fatalf("Occupied() after ReadAt (no advance) = %d, want 10", f.Occupied())
	}
	f.AdvanceTail(10)
	if f.Occupied() != 0 {
		t.Fatalf("Occupied() after AdvanceTail = %d, want 0", f.Occupied())
	}
}

func TestOccupiedNeverReachesCapacity(t *testing.T) {
	f := New(make([]byte, 100), 10)
	huge := make([]byte, 200)
	n := f.WriteAt(huge)
	if n > f.Capacity() {
		t.Fatalf("WriteAt wrote %d bytes into a %d-byte Fifo", n, f.Capacity())
	}
	if f.Occupied() >= f.Capacity() {
		t.Fatalf("Occupied() = %d must stay < Capacity() = %d", f.Occupied(), f.Capacity())
	}
}

func TestWrapAroundBufferEnd(t *testing.T) {
	f := New(make([]byte, 20), 4)
	f.WriteAt([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	f.AdvanceTail(16) // drain everything, head=tail=16
	if f.Head() != 16 || f.Tail() != 16 {
		t.Fatalf("head/tail = %d/%d, want 16/16", f.Head(), f.Tail())
	}

	f.WriteAt([]byte{100, 101, 102, 103, 104, 105, 106, 107}) // wraps past 20
	dst := make([]byte, 8)
	f.ReadAt(dst)
	want := []byte{100, 101, 102, 103, 104, 105, 106, 107}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("wrapped read byte %d = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestZeroFillPadsSilence(t *testing.T) {
	f := New(make([]byte, 20), 4)
	f.WriteAt([]byte{1, 2, 3, 4})
	f.ZeroFill(4)
	dst := make([]byte, 8)
	f.ReadAt(dst)
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestResetEmptiesFifo(t *testing.T) {
	f := New(make([]byte, 20), 4)
	f.WriteAt([]byte{1, 2, 3, 4})
	f.Reset()
	if f.Occupied() != 0 || f.Head() != 0 || f.Tail() != 0 {
		t.Fatalf("Reset did not empty the Fifo: occupied=%d head=%d tail=%d", f.Occupied(), f.Head(), f.Tail())
	}
}

func TestContiguousFreeAndOccupiedRespectBufferEnd(t *testing.T) {
	f := New(make([]byte, 20), 4)
	f.SetHead(16)
	f.SetTail(16)
	if got := f.ContiguousFree(); got != 4 {
		t.Fatalf("ContiguousFree() at head=16 = %d, want 4 (distance to buffer end)", got)
	}
}
