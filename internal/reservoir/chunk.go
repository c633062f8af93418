package reservoir

import (
	"slices"

	"github.com/roach88/rulecore/internal/status"
)

// BlockWidth is the number of bits in one storage block.
const BlockWidth = 64

// chunk is the bit storage shared by every status registered under one
// chunk key.
//
// Fields never straddle blocks. Free regions are kept as descriptors whose
// size field is the region width, sorted by status.FormatLess so the
// smallest region that fits is found by binary search.
type chunk struct {
	blocks      []uint64
	emptyFields []status.Descriptor
}

func blockMask(width uint8) uint64 {
	if width >= BlockWidth {
		return ^uint64(0)
	}
	return uint64(1)<<width - 1
}

// allocate reserves width bits and returns their position.
func (c *chunk) allocate(width uint8) (uint32, bool) {
	if width == 0 || width > BlockWidth {
		return 0, false
	}

	i, _ := slices.BinarySearchFunc(c.emptyFields, width, func(d status.Descriptor, w uint8) int {
		if status.FormatLessSize(d, w) {
			return -1
		}
		return 1
	})
	if i < len(c.emptyFields) {
		field := c.emptyFields[i]
		c.emptyFields = slices.Delete(c.emptyFields, i, i+1)
		pos := field.Position()
		if rest := field.Size() - width; rest > 0 {
			c.addEmptyField(pos+uint32(width), rest)
		}
		return pos, true
	}

	pos := uint64(len(c.blocks)) * BlockWidth
	if pos+BlockWidth-1 > uint64(status.MaxPosition) {
		return 0, false
	}
	c.blocks = append(c.blocks, 0)
	if rest := uint8(BlockWidth) - width; rest > 0 {
		c.addEmptyField(uint32(pos)+uint32(width), rest)
	}
	return uint32(pos), true
}

func (c *chunk) addEmptyField(pos uint32, width uint8) {
	field := status.NewDescriptor(status.NoKey, status.NoKey, int8(width))
	field.SetPosition(pos)
	i, _ := slices.BinarySearchFunc(c.emptyFields, field, func(a, b status.Descriptor) int {
		if status.FormatLess(a, b) {
			return -1
		}
		return 1
	})
	c.emptyFields = slices.Insert(c.emptyFields, i, field)
}

// getBits reads width bits at pos.
func (c *chunk) getBits(pos uint32, width uint8) (uint64, bool) {
	block := pos / BlockWidth
	offset := pos % BlockWidth
	if int(block) >= len(c.blocks) || uint32(width)+offset > BlockWidth {
		return 0, false
	}
	return c.blocks[block] >> offset & blockMask(width), true
}

// setBits writes width bits at pos.
// Returns -1 on a bad field or a value wider than width, 0 if the stored
// bits did not change and 1 if they did.
func (c *chunk) setBits(pos uint32, width uint8, bits uint64) int {
	block := pos / BlockWidth
	offset := pos % BlockWidth
	mask := blockMask(width)
	if int(block) >= len(c.blocks) || uint32(width)+offset > BlockWidth || bits&^mask != 0 {
		return -1
	}
	old := c.blocks[block]
	next := old&^(mask<<offset) | bits<<offset
	if next == old {
		return 0
	}
	c.blocks[block] = next
	return 1
}
