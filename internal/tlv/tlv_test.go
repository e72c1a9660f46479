package tlv

import "testing"

func TestNewAndPresent(t *testing.T) {
	null := New(1, nil)
	if null.Present() {
		t.Error("New(t, nil) should be null")
	}
	if null.Len() != 0 {
		t.Errorf("null TLV Len() = %d, want 0", null.Len())
	}

	empty := New(1, []byte{})
	if !empty.Present() {
		t.Error("New(t, []byte{}) should be present")
	}
	if empty.Len() != 0 {
		t.Errorf("empty TLV Len() = %d, want 0", empty.Len())
	}

	v := New(2, []byte{0xAA, 0xBB})
	if !v.Present() || v.Len() != 2 {
		t.Errorf("New with value: present=%v len=%d, want true/2", v.Present(), v.Len())
	}
}

func TestCopyIndependence(t *testing.T) {
	orig := New(5, []byte{1, 2, 3})
	clone := orig.Copy()

	if !clone.Equal(orig) {
		t.Fatal("copy should be equal to original")
	}

	clone.Bytes()[0] = 0xFF
	if orig.Bytes()[0] == 0xFF {
		t.Error("mutating copy's bytes affected original: copy is not deep")
	}

	nullClone := TLV{}.Copy()
	if nullClone.Present() {
		t.Error("copy of null TLV should be null")
	}
}

func TestEqual(t *testing.T) {
	a := New(1, []byte{1, 2})
	b := New(1, []byte{1, 2})
	c := New(1, []byte{1, 3})
	d := New(2, []byte{1, 2})
	null1 := TLV{}
	null2 := TLV{}

	cases := []struct {
		name string
		x, y TLV
		want bool
	}{
		{"equal values", a, b, true},
		{"different value bytes", a, c, false},
		{"different type", a, d, false},
		{"both null", null1, null2, true},
		{"null vs present", null1, a, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.x.Equal(tc.y); got != tc.want {
				t.Errorf("Equal() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResize(t *testing.T) {
	v := New(1, []byte{1, 2, 3})

	if err := v.Resize(5); err != nil {
		t.Fatalf("Resize(5) error: %v", err)
	}
	if v.Len() != 5 {
		t.Errorf("Len() after Resize(5) = %d, want 5", v.Len())
	}
	if v.Bytes()[0] != 1 || v.Bytes()[2] != 3 {
		t.Error("Resize should preserve existing bytes")
	}
	if v.Bytes()[3] != 0 || v.Bytes()[4] != 0 {
		t.Error("Resize should zero-extend new bytes")
	}

	if err := v.Resize(2); err != nil {
		t.Fatalf("Resize(2) error: %v", err)
	}
	if v.Len() != 2 {
		t.Errorf("Len() after Resize(2) = %d, want 2", v.Len())
	}

	if err := v.Resize(256); err != ErrValueTooLarge {
		t.Errorf("Resize(256) error = %v, want ErrValueTooLarge", err)
	}

	null := TLV{Type: 9}
	if err := null.Resize(3); err != nil {
		t.Fatalf("Resize on null TLV error: %v", err)
	}
	if !null.Present() {
		t.Error("Resize should make a null TLV present")
	}
}

func TestStringAndPresence(t *testing.T) {
	null := TLV{Type: 1}
	if null.String() != "" {
		t.Errorf("null TLV String() = %q, want empty", null.String())
	}
	if null.Present() {
		t.Error("null TLV should report Present() == false")
	}

	empty := New(1, []byte{})
	if empty.String() != "" {
		t.Errorf("empty TLV String() = %q, want empty", empty.String())
	}
	if !empty.Present() {
		t.Error("empty-but-present TLV should report Present() == true")
	}

	v := New(1, []byte("hello"))
	if v.String() != "hello" {
		t.Errorf("String() = %q, want hello", v.String())
	}
}

func TestUint32(t *testing.T) {
	v := New(1, []byte{0x01, 0x02, 0x03, 0x04})
	got, ok := v.Uint32()
	if !ok {
		t.Fatal("Uint32() ok = false, want true")
	}
	want := uint32(0x01)<<24 | uint32(0x02)<<16 | uint32(0x03)<<8 | uint32(0x04)
	if got != want {
		t.Errorf("Uint32() = %d, want %d", got, want)
	}

	short := New(1, []byte{0x01, 0x02})
	if _, ok := short.Uint32(); ok {
		t.Error("Uint32() on short value should return ok=false")
	}
}

func TestIPv4(t *testing.T) {
	v := New(1, []byte{10, 0, 0, 1})
	got, ok := v.IPv4()
	if !ok || got != "10.0.0.1" {
		t.Errorf("IPv4() = (%q, %v), want (10.0.0.1, true)", got, ok)
	}

	short := New(1, []byte{10, 0})
	if _, ok := short.IPv4(); ok {
		t.Error("IPv4() on short value should return ok=false")
	}
}
