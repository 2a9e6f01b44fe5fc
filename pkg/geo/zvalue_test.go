package geo

import (
	"math/rand/v2"
	"testing"
)

// gridPoint snaps random coordinates onto the 1e-6 quantisation grid so the
// codec round-trips exactly.
func gridPoint(rng *rand.Rand, dims int) Point {
	p := Point{
		X: float64(rng.IntN(360_000_001)-180_000_000) / 1e6,
		Y: float64(rng.IntN(180_000_001)-90_000_000) / 1e6,
	}
	if dims == 3 {
		p.Z = float64(rng.IntN(1 << 20))
	}
	return p
}

func TestCodecRoundTrip2D(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10_000; i++ {
		p := gridPoint(rng, 2)
		c := Encode(p, 2)
		if c.Hi != 0 {
			t.Fatalf("2-D code %v uses the high word", c)
		}
		if got := Decode(c, 2); got != p {
			t.Fatalf("round trip: got %v, want %v", got, p)
		}
	}
}

func TestCodecRoundTrip3D(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 10_000; i++ {
		p := gridPoint(rng, 3)
		if got := Decode(Encode(p, 3), 3); got != p {
			t.Fatalf("round trip: got %v, want %v", got, p)
		}
	}
}

func TestComposeDecompose(t *testing.T) {
	cases := []struct {
		x, y, z uint32
		dims    int
	}{
		{0, 0, 0, 2},
		{1, 0, 0, 2},
		{0, 1, 0, 2},
		{0xffffffff, 0xffffffff, 0, 2},
		{0xdeadbeef, 0x01234567, 0, 2},
		{1, 2, 3, 3},
		{0xffffffff, 0xffffffff, 0xffffffff, 3},
	}
	for _, c := range cases {
		code := Compose(c.x, c.y, c.z, c.dims)
		x, y, z := Decompose(code, c.dims)
		if x != c.x || y != c.y || (c.dims == 3 && z != c.z) {
			t.Errorf("dims=%d (%x,%x,%x): got (%x,%x,%x)", c.dims, c.x, c.y, c.z, x, y, z)
		}
	}
}

// The x coordinate occupies the higher bit of each interleaved group.
func TestInterleaveOrder(t *testing.T) {
	if c := Compose(1, 0, 0, 2); c.Lo != 2 {
		t.Errorf("Compose(1,0) = %v, want Lo=2", c)
	}
	if c := Compose(0, 1, 0, 2); c.Lo != 1 {
		t.Errorf("Compose(0,1) = %v, want Lo=1", c)
	}
	if c := Compose(1, 0, 0, 3); c.Lo != 4 {
		t.Errorf("3-D Compose(1,0,0) = %v, want Lo=4", c)
	}
	if c := Compose(0, 0, 1, 3); c.Lo != 1 {
		t.Errorf("3-D Compose(0,0,1) = %v, want Lo=1", c)
	}
}

func TestCodeOrdering(t *testing.T) {
	a := Code{Hi: 0, Lo: 10}
	b := Code{Hi: 0, Lo: 20}
	c := Code{Hi: 1, Lo: 0}
	if !a.Less(b) || !b.Less(c) || c.Less(a) {
		t.Error("lexicographic ordering broken")
	}
	if a.Cmp(a) != 0 {
		t.Error("Cmp of equal codes is not 0")
	}
}

func TestOrShiftCrossesWordBoundary(t *testing.T) {
	c := Code{}.OrShift(0b101, 63)
	// Bit 63 lands in Lo, bits 64..65 in Hi.
	if c.Lo != 1<<63 || c.Hi != 0b10 {
		t.Errorf("OrShift(0b101, 63) = {Hi:%b Lo:%b}", c.Hi, c.Lo)
	}
	c = Code{}.OrShift(0b11, 90)
	if c.Lo != 0 || c.Hi != 0b11<<26 {
		t.Errorf("OrShift(0b11, 90) = {Hi:%b Lo:%b}", c.Hi, c.Lo)
	}
}
