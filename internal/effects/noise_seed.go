package effects

import "math/rand/v2"

// noiseSeed returns a fresh LCG seed per noise field so consecutive frames
// never share a grain pattern.
func noiseSeed() uint64 {
	return rand.Uint64() | 1
}
