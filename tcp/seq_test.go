package tcp

import "testing"

func TestSeqCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		lt   bool
	}{
		{"plain less", 1, 2, true},
		{"plain greater", 2, 1, false},
		{"equal", 5, 5, false},
		{"wrap forward", 0xfffffff0, 0x10, true},
		{"wrap backward", 0x10, 0xfffffff0, false},
		{"half space boundary", 0, 0x7fffffff, true},
		{"past half space", 0, 0x80000001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seqLT(tt.a, tt.b); got != tt.lt {
				t.Errorf("seqLT(%#x, %#x) = %v, want %v", tt.a, tt.b, got, tt.lt)
			}
		})
	}
}

func TestSeqLEQ(t *testing.T) {
	if !seqLEQ(7, 7) {
		t.Error("seqLEQ(7, 7) = false, want true")
	}
	if !seqLEQ(0xffffffff, 0) {
		t.Error("seqLEQ(0xffffffff, 0) = false, want true")
	}
	if seqLEQ(1, 0) {
		t.Error("seqLEQ(1, 0) = true, want false")
	}
}
