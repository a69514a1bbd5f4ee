package security

import "runtime"

// ZeroBytes overwrites a byte slice so key material does not linger in memory
// after a session or export has finished with it.
//
// Sensitive data (passphrases, unwrapped keys) must be held as []byte, never
// string: Go strings are immutable and cannot be erased.
func ZeroBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	patterns := []byte{0x00, 0xFF, 0xAA, 0x55}
	for _, pattern := range patterns {
		for i := range data {
			data[i] = pattern
		}
		// Compiler barrier to prevent the passes being optimized away
		runtime.KeepAlive(data)
	}

	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// SecureCopy returns an independent copy of sensitive bytes so the caller can
// zero its own buffer without invalidating the copy.
func SecureCopy(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
