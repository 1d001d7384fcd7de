package rng

// Parameters of MRG32k3a from L'Ecuyer, "Good Parameters and Implementations
// for Combined Multiple Recursive Random Number Generators" (1999).
const (
	mrgM1   = 4294967087 // 2^32 - 209
	mrgM2   = 4294944443 // 2^32 - 22853
	mrgA12  = 1403580
	mrgA13n = 810728
	mrgA21  = 527612
	mrgA23n = 1370589

	mrgNorm = 1.0 / (mrgM1 + 1)
)

// mrg32k3a holds the two order-3 component states. Products stay below 2^53,
// so int64 arithmetic is exact.
type mrg32k3a struct {
	s1 [3]int64
	s2 [3]int64
}

// newMRG32k3a fills the six state words from successive steps of a 32-bit
// LCG started at seed.
func newMRG32k3a(seed uint64) *mrg32k3a {
	lcg := func() int64 {
		seed = (69069*seed + 1) & 0xffffffff
		return int64(seed)
	}
	g := &mrg32k3a{}
	for i := range g.s1 {
		g.s1[i] = lcg() % mrgM1
	}
	for i := range g.s2 {
		g.s2[i] = lcg() % mrgM2
	}
	// A component whose state is all zero stays zero forever.
	if g.s1 == [3]int64{} {
		g.s1[0] = 1
	}
	if g.s2 == [3]int64{} {
		g.s2[0] = 1
	}
	return g
}

// Uint32 advances both components and returns their combination, an integer
// in [1, mrgM1].
func (g *mrg32k3a) Uint32() uint32 {
	p1 := (mrgA12*g.s1[1] - mrgA13n*g.s1[0]) % mrgM1
	if p1 < 0 {
		p1 += mrgM1
	}
	g.s1 = [3]int64{g.s1[1], g.s1[2], p1}

	p2 := (mrgA21*g.s2[2] - mrgA23n*g.s2[0]) % mrgM2
	if p2 < 0 {
		p2 += mrgM2
	}
	g.s2 = [3]int64{g.s2[1], g.s2[2], p2}

	if p1 <= p2 {
		return uint32(p1 - p2 + mrgM1)
	}
	return uint32(p1 - p2)
}

// Float64 returns a draw in [0, 1).
func (g *mrg32k3a) Float64() float64 {
	return float64(g.Uint32()) * mrgNorm
}
