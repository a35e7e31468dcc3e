package protocol

import "testing"

func TestSelectVersionNegotiation(t *testing.T) {
	for _, v := range []uint32{0, 1, 2} {
		if _, ok := Select(v, false); ok {
			t.Errorf("Select(%d) should fail to negotiate", v)
		}
	}
	d, ok := Select(3, false)
	if !ok || d.Version != 3 {
		t.Fatalf("Select(3) = %+v, %v", d, ok)
	}
	d, ok = Select(9, false)
	if !ok || d.Version != 6 {
		t.Fatalf("Select(9) should clamp to v6, got %+v", d)
	}
}

func TestPreInitOnlyRecognizesInit(t *testing.T) {
	d := PreInit()
	if !d.Supports(TypeInit) {
		t.Fatal("pre-init descriptor must support INIT")
	}
	if d.Supports(TypeOpen) {
		t.Fatal("pre-init descriptor must not support OPEN")
	}
}

func TestCommandTablesAreSortedAscending(t *testing.T) {
	for _, d := range []Descriptor{V3(false), V4(), V5(), V6()} {
		for i := 1; i < len(d.commands); i++ {
			if d.commands[i-1] >= d.commands[i] {
				t.Fatalf("v%d command table not strictly ascending at %d: %v", d.Version, i, d.commands)
			}
		}
	}
}

func TestV6SupportsNewerOps(t *testing.T) {
	d := V6()
	for _, typ := range []uint8{TypeLink, TypeBlock, TypeUnblock} {
		if !d.Supports(typ) {
			t.Errorf("v6 should support type %d", typ)
		}
	}
	if V3(false).Supports(TypeLink) {
		t.Error("v3 must not support LINK")
	}
}
