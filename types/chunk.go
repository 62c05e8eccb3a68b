package types

// Chunk is one bounded slice of a payload, placed at Offset in the
// scratch buffer.
type Chunk struct {
	Offset uint32 `cramberry:"1"`
	Bytes  []byte `cramberry:"2"`
}

// End returns the offset one past the last byte of the chunk.
func (c Chunk) End() uint32 { return c.Offset + uint32(len(c.Bytes)) }

// Receipt records a confirmed chunk write.
type Receipt struct {
	Offset    uint32    `cramberry:"1"`
	Length    uint64    `cramberry:"2"`
	Signature Signature `cramberry:"3"`
}
