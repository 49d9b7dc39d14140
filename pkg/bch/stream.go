package bch

// Stream reads little-endian bitcoin wire fields from a byte slice.
// Reads past the end return zero values and mark the stream invalid,
// so callers check Valid() once after decoding a whole structure.
type Stream struct {
	b     []byte
	p     uint64
	valid bool
}

func NewStream(b []byte) *Stream {
	return &Stream{b: b, valid: true}
}

// Valid is false once any read has overrun the data.
func (s *Stream) Valid() bool {
	return s.valid
}

// Complete is true when every byte has been consumed without overrun.
func (s *Stream) Complete() bool {
	return s.valid && s.p == uint64(len(s.b))
}

func (s *Stream) Pos() uint64 {
	return s.p
}

func (s *Stream) has(num uint64) bool {
	if !s.valid || num > uint64(len(s.b))-s.p {
		s.valid = false
		return false
	}
	return true
}

func (s *Stream) Bytes(num uint64) []byte {
	if !s.has(num) {
		return nil
	}
	p := s.p
	s.p += num
	return s.b[p : p+num]
}

func (s *Stream) Uint8() uint8 {
	if !s.has(1) {
		return 0
	}
	v := s.b[s.p]
	s.p += 1
	return v
}

func (s *Stream) Uint16le() uint16 {
	if !s.has(2) {
		return 0
	}
	b := s.b
	p := s.p
	s.p += 2
	return uint16(b[p]) | uint16(b[p+1])<<8
}

func (s *Stream) Uint32le() uint32 {
	if !s.has(4) {
		return 0
	}
	b := s.b
	p := s.p
	s.p += 4
	return uint32(b[p]) | uint32(b[p+1])<<8 | uint32(b[p+2])<<16 | uint32(b[p+3])<<24
}

func (s *Stream) Uint64le() uint64 {
	if !s.has(8) {
		return 0
	}
	b := s.b
	p := s.p
	s.p += 8
	return uint64(b[p]) | uint64(b[p+1])<<8 | uint64(b[p+2])<<16 | uint64(b[p+3])<<24 |
		uint64(b[p+4])<<32 | uint64(b[p+5])<<40 | uint64(b[p+6])<<48 | uint64(b[p+7])<<56
}

func (s *Stream) VarUint() uint64 {
	val := s.Uint8()
	if val < 253 {
		return uint64(val)
	}
	if val == 253 {
		return uint64(s.Uint16le())
	}
	if val == 254 {
		return uint64(s.Uint32le())
	}
	return s.Uint64le()
}
