// Package instruction encodes and decodes the loader's instruction set.
//
// The set is closed: every instruction the driver can issue has a Tag
// constant, a builder that fixes its account ordering, and a decoded
// form. All integers are little-endian and fixed-width.
package instruction

import "fmt"

// Tag identifies a loader instruction.
type Tag uint8

const (
	TagWrite              Tag = 0x00
	TagCreateAccount      Tag = 0x02
	TagCall               Tag = 0x03
	TagFinalizeFromBuffer Tag = 0x08
	TagContinue           Tag = 0x0a
	TagBeginPartial       Tag = 0x0b
)

func (t Tag) String() string {
	switch t {
	case TagWrite:
		return "Write"
	case TagCreateAccount:
		return "CreateAccount"
	case TagCall:
		return "Call"
	case TagFinalizeFromBuffer:
		return "FinalizeFromBuffer"
	case TagContinue:
		return "Continue"
	case TagBeginPartial:
		return "BeginPartial"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// wideTag reports whether the tag is encoded as a 4-byte little-endian
// word rather than a single byte.
func (t Tag) wideTag() bool {
	return t == TagWrite || t == TagCreateAccount
}

// systemCreateAccountWithSeed is the system program's instruction index.
const systemCreateAccountWithSeed uint32 = 3
