package wire

import "testing"

func TestRoundTripPrimitives(t *testing.T) {
	var w Writer
	w.PutUint8(0x7f)
	w.PutUint16(0x1234)
	w.PutUint32(0xdeadbeef)
	w.PutUint64(0x0102030405060708)
	w.PutString("hello, sftp")

	r := NewReader(w.Bytes())
	if v, err := r.TakeUint8(); err != nil || v != 0x7f {
		t.Fatalf("TakeUint8 = %v, %v", v, err)
	}
	if v, err := r.TakeUint16(); err != nil || v != 0x1234 {
		t.Fatalf("TakeUint16 = %v, %v", v, err)
	}
	if v, err := r.TakeUint32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("TakeUint32 = %v, %v", v, err)
	}
	if v, err := r.TakeUint64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("TakeUint64 = %v, %v", v, err)
	}
	if v, err := r.TakeString(); err != nil || v != "hello, sftp" {
		t.Fatalf("TakeString = %q, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", r.Remaining())
	}
}

func TestSubBlockBackpatch(t *testing.T) {
	var w Writer
	w.PutUint8(1)
	w.BeginSub()
	w.PutString("a")
	w.PutString("bb")
	w.EndSub()

	r := NewReader(w.Bytes())
	if _, err := r.TakeUint8(); err != nil {
		t.Fatal(err)
	}
	length, err := r.TakeUint32()
	if err != nil {
		t.Fatal(err)
	}
	// "a" -> 4+1, "bb" -> 4+2
	want := uint32(5 + 6)
	if length != want {
		t.Fatalf("sub-block length = %d, want %d", length, want)
	}
	if uint32(r.Remaining()) != length {
		t.Fatalf("remaining = %d, want %d (length must match bytes actually following)", r.Remaining(), length)
	}
}

func TestTakeShortBufferIsSafe(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 5, 'a', 'b'}) // claims 5 bytes, only has 2
	if _, err := r.TakeString(); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestPeekStringLeavesCursorUntouched(t *testing.T) {
	var w Writer
	w.PutString("posix-rename@openssh.com")
	w.PutString("/old")

	r := NewReader(w.Bytes())
	name, ok := r.PeekString()
	if !ok || name != "posix-rename@openssh.com" {
		t.Fatalf("PeekString = %q, %v", name, ok)
	}
	if r.Remaining() != len(w.Bytes()) {
		t.Fatalf("PeekString consumed bytes: remaining = %d, want %d", r.Remaining(), len(w.Bytes()))
	}

	got, err := r.TakeString()
	if err != nil || got != "posix-rename@openssh.com" {
		t.Fatalf("TakeString after peek = %q, %v", got, err)
	}
	rest, err := r.TakeString()
	if err != nil || rest != "/old" {
		t.Fatalf("TakeString = %q, %v", rest, err)
	}
}

func TestPeekStringOnShortBufferFails(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 5, 'a', 'b'}) // claims 5 bytes, only has 2
	if _, ok := r.PeekString(); ok {
		t.Fatal("expected PeekString to fail on a short buffer")
	}
}

func TestEndSubWithoutBeginPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unmatched EndSub")
		}
	}()
	var w Writer
	w.EndSub()
}
