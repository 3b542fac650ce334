package jit

import "math/rand/v2"

const (
	stemAlphabet = "abcdefghijkmnpqrstuvwxyz0123456789"
	stemLen      = 12
)

// newStem draws a library file stem from r. The alphabet leaves out l and o.
func newStem(r *rand.Rand) string {
	b := make([]byte, stemLen)
	for i := range b {
		b[i] = stemAlphabet[r.IntN(len(stemAlphabet))]
	}
	return string(b)
}

func defaultRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
