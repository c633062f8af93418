package status

const (
	positionBits  = 24
	positionMask  = uint32(1)<<positionBits - 1
	transitionBit = positionBits
	sizeShift     = transitionBit + 1
	sizeBits      = 32 - sizeShift
	sizeMask      = uint32(1)<<sizeBits - 1

	// MaxPosition is the largest bit position a descriptor can hold.
	MaxPosition = positionMask

	// MaxSize is the largest value the unsigned size reading can hold.
	MaxSize = uint8(sizeMask)
)

// Descriptor locates one status inside its chunk's bit storage.
//
// The zero value is not useful; construct with NewDescriptor.
type Descriptor struct {
	key      Key
	chunkKey Key
	format   uint32
}

// NewDescriptor creates a descriptor with position 0 and the transition
// flag set.
func NewDescriptor(key, chunkKey Key, variety int8) Descriptor {
	return Descriptor{
		key:      key,
		chunkKey: chunkKey,
		format:   uint32(1)<<transitionBit | (uint32(uint8(variety))&sizeMask)<<sizeShift,
	}
}

// Key returns the status key.
func (d Descriptor) Key() Key { return d.key }

// ChunkKey returns the key of the chunk owning the status.
func (d Descriptor) ChunkKey() Key { return d.chunkKey }

// Format returns the packed word.
func (d Descriptor) Format() uint32 { return d.format }

// Position returns the bit offset of the value inside its chunk.
func (d Descriptor) Position() uint32 {
	return d.format & positionMask
}

// SetPosition stores p as the bit offset.
// Returns false and leaves the descriptor untouched if p > MaxPosition.
func (d *Descriptor) SetPosition(p uint32) bool {
	if p > positionMask {
		return false
	}
	d.format = d.format&^positionMask | p
	return true
}

// Variety returns the 7-bit field sign-extended.
func (d Descriptor) Variety() int8 {
	return int8(d.format>>24) >> 1
}

// SetVariety stores the low 7 bits of v.
func (d *Descriptor) SetVariety(v int8) {
	d.format = d.format&^(sizeMask<<sizeShift) | (uint32(uint8(v))&sizeMask)<<sizeShift
}

// Size returns the 7-bit field as an unsigned magnitude.
func (d Descriptor) Size() uint8 {
	return FormatSize(d.format)
}

// FormatSize reads the unsigned size field from a packed word.
func FormatSize(format uint32) uint8 {
	return uint8(format >> sizeShift & sizeMask)
}

// Transition reports whether the status changed since the last reset.
func (d Descriptor) Transition() bool {
	return d.format>>transitionBit&1 != 0
}

// CopyTransition copies only the transition flag from src.
func (d *Descriptor) CopyTransition(src Descriptor) {
	const bit = uint32(1) << transitionBit
	d.format = d.format&^bit | src.format&bit
}

// SetTransition marks the status as changed.
func (d *Descriptor) SetTransition() {
	d.format |= uint32(1) << transitionBit
}

// ResetTransition clears the changed flag.
func (d *Descriptor) ResetTransition() {
	d.format &^= uint32(1) << transitionBit
}

// FormatLess orders descriptors by size, then by position.
// Descriptors equal in both are not distinguished.
func FormatLess(a, b Descriptor) bool {
	as, bs := a.Size(), b.Size()
	if as != bs {
		return as < bs
	}
	return a.Position() < b.Position()
}

// FormatLessSize reports whether d sorts before any descriptor of the
// given size.
func FormatLessSize(d Descriptor, size uint8) bool {
	return d.Size() < size
}

// SizeLessFormat reports whether a descriptor of the given size sorts
// before d.
func SizeLessFormat(size uint8, d Descriptor) bool {
	return size < d.Size()
}
