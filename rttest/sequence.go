package rttest

import (
	"fmt"
)

// Sequence is the 8-bit counter carried by every byte on the link. It wraps
// modulo 256.
type Sequence uint8

// Next returns s+1, wrapping 255 to 0.
func (s Sequence) Next() Sequence {
	return s + 1
}

// String formats s in decimal and hex, e.g. " 255 [ff]".
func (s Sequence) String() string {
	return fmt.Sprintf("%4d [%02x]", uint8(s), uint8(s))
}
