package syncer

// DefaultChunkBytes is the target upper bound of one bulk fetch.
const DefaultChunkBytes int64 = 4 << 20

// Chunker splits a transfer plan into batches whose summed size stays below
// a target maximum. A message that reaches the maximum on its own still gets
// a chunk of its own. Chunks are produced one at a time and cannot be
// rewound.
type Chunker struct {
	plan []Transfer
	max  int64
	pos  int
}

// NewChunker returns a Chunker over plan. maxBytes <= 0 means
// DefaultChunkBytes.
func NewChunker(plan []Transfer, maxBytes int64) *Chunker {
	if maxBytes <= 0 {
		maxBytes = DefaultChunkBytes
	}
	return &Chunker{plan: plan, max: maxBytes}
}

// Next returns the UIDs of the next chunk, or false once the plan is used up.
func (c *Chunker) Next() ([]uint32, bool) {
	if c.pos >= len(c.plan) {
		return nil, false
	}
	var chunk []uint32
	var total int64
	for c.pos < len(c.plan) {
		t := c.plan[c.pos]
		if total+t.Size >= c.max {
			if len(chunk) > 0 {
				return chunk, true
			}
			c.pos++
			return []uint32{t.UID}, true
		}
		chunk = append(chunk, t.UID)
		total += t.Size
		c.pos++
	}
	return chunk, true
}
