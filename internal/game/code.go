package game

import "math/rand/v2"

// codeAlphabet leaves out characters that are easy to misread on a shared screen (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewRoomCode returns a short human-shareable room code. Codes are not guaranteed unique;
// the store rejects a taken code and CreateRoom draws another.
func NewRoomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}

	return string(b)
}
