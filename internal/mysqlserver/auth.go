package mysqlserver

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
)

// generateScramble produces the 20-byte auth-plugin-data mysql_native_
// password challenge sent in the handshake packet.
func generateScramble() ([20]byte, error) {
	var scramble [20]byte
	if _, err := rand.Read(scramble[:]); err != nil {
		return scramble, err
	}
	// NUL bytes are replaced with 0x01 since the wire format
	// null-terminates the scramble; all other byte values are kept.
	for i, b := range scramble {
		if b == 0x00 {
			scramble[i] = 0x01
		}
	}
	return scramble, nil
}

// checkNativePassword verifies a mysql_native_password auth response
// per spec.md §4.8: SHA1(pass) XOR SHA1(scramble || SHA1(SHA1(pass))).
func checkNativePassword(password string, scramble [20]byte, response []byte) bool {
	if password == "" {
		return len(response) == 0
	}
	if len(response) != sha1.Size {
		return false
	}
	sha1Pass := sha1.Sum([]byte(password))
	sha1Sha1Pass := sha1.Sum(sha1Pass[:])

	h := sha1.New()
	h.Write(scramble[:])
	h.Write(sha1Sha1Pass[:])
	step2 := h.Sum(nil)

	expected := make([]byte, sha1.Size)
	for i := range expected {
		expected[i] = sha1Pass[i] ^ step2[i]
	}
	return subtle.ConstantTimeCompare(expected, response) == 1
}
