package object

// VerifyState is one of the four validation states a checked field can
// be in (spec §3 "Flag bits").
type VerifyState uint8

const (
	Unverified VerifyState = iota
	Invalid
	Recheck
	Verified
)

// Flags packs the four checked/valid field pairs plus the cache bit
// into a single 16-bit word, matching the packed entry record's `flags`
// field (spec §4.2).
//
// Bit layout (low to high): type(2) charset(2) encoding(2) syntax(2) cache(1).
type Flags uint16

const (
	shiftType     = 0
	shiftCharset  = 2
	shiftEncoding = 4
	shiftSyntax   = 6
	bitCache      = 1 << 8

	fieldMask = 0x3
)

func getState(f Flags, shift uint) VerifyState {
	return VerifyState((uint16(f) >> shift) & fieldMask)
}

func setState(f Flags, shift uint, s VerifyState) Flags {
	cleared := uint16(f) &^ (fieldMask << shift)
	return Flags(cleared | (uint16(s)&fieldMask)<<shift)
}

func (f Flags) TypeState() VerifyState     { return getState(f, shiftType) }
func (f Flags) CharsetState() VerifyState  { return getState(f, shiftCharset) }
func (f Flags) EncodingState() VerifyState { return getState(f, shiftEncoding) }
func (f Flags) SyntaxState() VerifyState   { return getState(f, shiftSyntax) }

func (f Flags) WithTypeState(s VerifyState) Flags     { return setState(f, shiftType, s) }
func (f Flags) WithCharsetState(s VerifyState) Flags  { return setState(f, shiftCharset, s) }
func (f Flags) WithEncodingState(s VerifyState) Flags { return setState(f, shiftEncoding, s) }
func (f Flags) WithSyntaxState(s VerifyState) Flags   { return setState(f, shiftSyntax, s) }

// Cache reports whether the cache bit (bit 8) is set.
func (f Flags) Cache() bool { return uint16(f)&bitCache != 0 }

// WithCache returns f with the cache bit set to on.
func (f Flags) WithCache(on bool) Flags {
	if on {
		return Flags(uint16(f) | bitCache)
	}
	return Flags(uint16(f) &^ bitCache)
}
