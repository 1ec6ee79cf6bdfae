package align

import "testing"

func TestUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{1, 4096, 4096},
		{4097, 4096, 8192},
	}
	for _, c := range cases {
		if got := Up(c.n, c.align); got != c.want {
			t.Errorf("Up(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8, 4096, 8192} {
		if !IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = false", n)
		}
	}
	for _, n := range []int{0, -1, -8, 3, 6, 12, 4095} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true", n)
		}
	}
}

func TestPaddingFor(t *testing.T) {
	for _, align := range []int{8, 16, 64, 4096} {
		for addr := uintptr(0); addr < 256; addr++ {
			p := PaddingFor(addr, align)
			if (addr+uintptr(p))%uintptr(align) != 0 {
				t.Fatalf("PaddingFor(%d, %d) = %d: result not aligned", addr, align, p)
			}
			if p >= align {
				t.Fatalf("PaddingFor(%d, %d) = %d: not minimal", addr, align, p)
			}
		}
	}
}

func TestPaddingWithHeader(t *testing.T) {
	const headerSize = 56
	for _, align := range []int{8, 16, 64, 128, 4096} {
		for addr := uintptr(0); addr < 512; addr++ {
			p := PaddingWithHeader(addr, align, headerSize)
			if (addr+uintptr(p))%uintptr(align) != 0 {
				t.Fatalf("PaddingWithHeader(%d, %d, %d) = %d: result not aligned", addr, align, headerSize, p)
			}
			if p < headerSize {
				t.Fatalf("PaddingWithHeader(%d, %d, %d) = %d: header does not fit", addr, align, headerSize, p)
			}
			// Must never overshoot by more than one alignment increment
			// past the minimal header-fitting padding.
			if p >= headerSize+2*align {
				t.Fatalf("PaddingWithHeader(%d, %d, %d) = %d: padding excessive", addr, align, headerSize, p)
			}
		}
	}
}
