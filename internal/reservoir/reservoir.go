// Package reservoir stores status values packed into per-chunk bit
// storage.
//
// Each registered status owns a status.Descriptor whose variety field holds
// the status format:
//
//	 1    bool (1 bit)
//	-1    float (64 bits)
//	+w    unsigned integer of w bits, 2 <= w <= 63
//	-w    signed integer of w bits, 2 <= w <= 64
//
// A write that changes the stored bits sets the descriptor's transition
// flag; ResetTransitions clears all of them at the end of a dispatch.
package reservoir

import (
	"iter"
	"math"

	"github.com/roach88/rulecore/internal/sorted"
	"github.com/roach88/rulecore/internal/status"
)

const (
	formatBool  = int8(status.KindBool)
	formatFloat = int8(status.KindFloat)

	// MaxUnsignedWidth is the widest unsigned format the 7-bit variety
	// field can tag.
	MaxUnsignedWidth = 63

	// MaxSignedWidth is the widest signed format.
	MaxSignedWidth = BlockWidth

	minIntegerWidth = 2
)

// Reservoir owns status storage.
//
// Not safe for concurrent use.
type Reservoir struct {
	properties sorted.Map[status.Key, status.Descriptor]
	chunks     sorted.Map[status.Key, chunk]
}

// New creates an empty reservoir.
func New() *Reservoir {
	return &Reservoir{}
}

// BitWidth returns the number of bits a format occupies, 0 for an
// unknown format.
func BitWidth(format int8) uint8 {
	switch format {
	case 0:
		return 0
	case formatBool:
		return 1
	case formatFloat:
		return BlockWidth
	}
	if format < 0 {
		return uint8(-int16(format))
	}
	return uint8(format)
}

// FormatKind returns the value kind stored under a format.
func FormatKind(format int8) status.Kind {
	switch {
	case format == 0:
		return status.KindEmpty
	case format == formatBool:
		return status.KindBool
	case format == formatFloat:
		return status.KindFloat
	case format < 0:
		return status.KindSigned
	default:
		return status.KindUnsigned
	}
}

// RegisterBool registers a bool status.
func (r *Reservoir) RegisterBool(chunkKey, key status.Key, b bool) bool {
	return r.register(chunkKey, key, formatBool, boolBits(b))
}

// RegisterUnsigned registers an unsigned status of width bits.
// Fails if width is outside [2, MaxUnsignedWidth] or u does not fit.
func (r *Reservoir) RegisterUnsigned(chunkKey, key status.Key, u uint64, width uint8) bool {
	if width < minIntegerWidth || width > MaxUnsignedWidth || u>>width != 0 {
		return false
	}
	return r.register(chunkKey, key, int8(width), u)
}

// RegisterSigned registers a signed status of width bits.
// Fails if width is outside [2, MaxSignedWidth] or s does not fit.
func (r *Reservoir) RegisterSigned(chunkKey, key status.Key, s int64, width uint8) bool {
	if width < minIntegerWidth || width > MaxSignedWidth {
		return false
	}
	bits, ok := signedBits(s, width)
	if !ok {
		return false
	}
	return r.register(chunkKey, key, -int8(width), bits)
}

// RegisterFloat registers a float status.
func (r *Reservoir) RegisterFloat(chunkKey, key status.Key, f float64) bool {
	return r.register(chunkKey, key, formatFloat, math.Float64bits(f))
}

// RegisterStatus registers v under its kind's default width: 1 bit for
// bool, 64 for float and signed, MaxUnsignedWidth for unsigned.
func (r *Reservoir) RegisterStatus(chunkKey, key status.Key, v status.Value) bool {
	switch v.Kind() {
	case status.KindUnsigned:
		return r.RegisterStatusWidth(chunkKey, key, v, MaxUnsignedWidth)
	case status.KindSigned:
		return r.RegisterStatusWidth(chunkKey, key, v, MaxSignedWidth)
	default:
		return r.RegisterStatusWidth(chunkKey, key, v, 0)
	}
}

// RegisterStatusWidth registers v with an explicit bit width. The width is
// ignored for bool and float values.
func (r *Reservoir) RegisterStatusWidth(chunkKey, key status.Key, v status.Value, width uint8) bool {
	switch v.Kind() {
	case status.KindBool:
		b, _ := v.AsBool()
		return r.RegisterBool(chunkKey, key, b)
	case status.KindUnsigned:
		u, _ := v.AsUnsigned()
		return r.RegisterUnsigned(chunkKey, key, u, width)
	case status.KindSigned:
		s, _ := v.AsSigned()
		return r.RegisterSigned(chunkKey, key, s, width)
	case status.KindFloat:
		f, _ := v.AsFloat()
		return r.RegisterFloat(chunkKey, key, f)
	default:
		return false
	}
}

func (r *Reservoir) register(chunkKey, key status.Key, format int8, bits uint64) bool {
	if key == status.NoKey || r.properties.Find(key) != nil {
		return false
	}
	c, created := r.chunks.Equip(chunkKey)
	width := BitWidth(format)
	pos, ok := c.allocate(width)
	if !ok {
		if created {
			r.chunks.Erase(chunkKey)
		}
		return false
	}
	if c.setBits(pos, width, bits) < 0 {
		return false
	}
	d := status.NewDescriptor(key, chunkKey, format)
	d.SetPosition(pos)
	p, _ := r.properties.Equip(key)
	*p = d
	return true
}

// GetValue reads a status. Returns Empty for an unknown key.
func (r *Reservoir) GetValue(key status.Key) status.Value {
	d := r.properties.Find(key)
	if d == nil {
		return status.Empty()
	}
	c := r.chunks.Find(d.ChunkKey())
	if c == nil {
		return status.Empty()
	}
	format := d.Variety()
	width := BitWidth(format)
	bits, ok := c.getBits(d.Position(), width)
	if !ok {
		return status.Empty()
	}
	switch FormatKind(format) {
	case status.KindBool:
		return status.Bool(bits != 0)
	case status.KindFloat:
		return status.Float(math.Float64frombits(bits))
	case status.KindSigned:
		if width < BlockWidth && bits>>(width-1)&1 != 0 {
			bits |= ^blockMask(width)
		}
		return status.Signed(int64(bits))
	default:
		return status.Unsigned(bits)
	}
}

// SetValue writes v into a status, converting it to the status kind when
// the conversion is exact. Fails for an unknown key, an incompatible kind
// or a value that does not fit the width.
func (r *Reservoir) SetValue(key status.Key, v status.Value) bool {
	return r.setValue(key, v) >= 0
}

func (r *Reservoir) setValue(key status.Key, v status.Value) int {
	d := r.properties.Find(key)
	if d == nil {
		return -1
	}
	c := r.chunks.Find(d.ChunkKey())
	if c == nil {
		return -1
	}
	format := d.Variety()
	width := BitWidth(format)
	bits, ok := encode(format, width, v)
	if !ok {
		return -1
	}
	changed := c.setBits(d.Position(), width, bits)
	if changed > 0 {
		d.SetTransition()
	}
	return changed
}

func encode(format int8, width uint8, v status.Value) (uint64, bool) {
	switch FormatKind(format) {
	case status.KindBool:
		b, ok := v.AsBool()
		return boolBits(b), ok
	case status.KindFloat:
		f, ok := status.Float(0).Assign(status.Copy, v)
		if !ok {
			return 0, false
		}
		x, _ := f.AsFloat()
		return math.Float64bits(x), true
	case status.KindSigned:
		s, ok := status.Signed(0).Assign(status.Copy, v)
		if !ok {
			return 0, false
		}
		x, _ := s.AsSigned()
		return signedBits(x, width)
	default:
		u, ok := status.Unsigned(0).Assign(status.Copy, v)
		if !ok {
			return 0, false
		}
		x, _ := u.AsUnsigned()
		if x&^blockMask(width) != 0 {
			return 0, false
		}
		return x, true
	}
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// signedBits truncates s to width bits, failing if s does not fit.
func signedBits(s int64, width uint8) (uint64, bool) {
	if width < BlockWidth {
		limit := int64(1) << (width - 1)
		if s < -limit || s >= limit {
			return 0, false
		}
	}
	return uint64(s) & blockMask(width), true
}

// AssignStatus applies "key op= value".
func (r *Reservoir) AssignStatus(a status.Assignment) bool {
	current := r.GetValue(a.Key)
	if current.IsEmpty() {
		return false
	}
	next, ok := current.Assign(a.Operator, a.Value)
	if !ok {
		return false
	}
	return r.SetValue(a.Key, next)
}

// CompareStatus evaluates "key op value".
func (r *Reservoir) CompareStatus(key status.Key, op status.Comparison, v status.Value) status.Evaluation {
	return r.GetValue(key).Evaluate(op, v)
}

// CompareStatuses evaluates "left op right" over two stored statuses.
func (r *Reservoir) CompareStatuses(left status.Key, op status.Comparison, right status.Key) status.Evaluation {
	return r.GetValue(left).Evaluate(op, r.GetValue(right))
}

// Transition returns 1 if the status changed since the last reset, 0 if
// not, and -1 if key is unknown.
func (r *Reservoir) Transition(key status.Key) int8 {
	d := r.properties.Find(key)
	if d == nil {
		return -1
	}
	if d.Transition() {
		return 1
	}
	return 0
}

// ResetTransitions clears the transition flag of every status.
func (r *Reservoir) ResetTransitions() {
	for _, d := range r.properties.All() {
		d.ResetTransition()
	}
}

// FindBitWidth returns the width of a status, 0 if key is unknown.
func (r *Reservoir) FindBitWidth(key status.Key) uint8 {
	return BitWidth(r.ExtractFormat(key))
}

// ExtractFormat returns the format of a status, 0 if key is unknown.
func (r *Reservoir) ExtractFormat(key status.Key) int8 {
	d := r.properties.Find(key)
	if d == nil {
		return 0
	}
	return d.Variety()
}

// Descriptor returns a copy of the descriptor for key.
func (r *Reservoir) Descriptor(key status.Key) (status.Descriptor, bool) {
	d := r.properties.Find(key)
	if d == nil {
		return status.Descriptor{}, false
	}
	return *d, true
}

// EraseChunk removes a chunk and every status registered in it.
func (r *Reservoir) EraseChunk(chunkKey status.Key) bool {
	if _, ok := r.chunks.Erase(chunkKey); !ok {
		return false
	}
	r.properties.EraseFunc(func(_ status.Key, d *status.Descriptor) bool {
		return d.ChunkKey() == chunkKey
	})
	return true
}

// Len returns the number of registered statuses.
func (r *Reservoir) Len() int {
	return r.properties.Len()
}

// ChunkBlocks returns the number of storage blocks in a chunk.
func (r *Reservoir) ChunkBlocks(chunkKey status.Key) int {
	c := r.chunks.Find(chunkKey)
	if c == nil {
		return 0
	}
	return len(c.blocks)
}

// Statuses iterates registered statuses in key order.
func (r *Reservoir) Statuses() iter.Seq2[status.Key, status.Value] {
	return func(yield func(status.Key, status.Value) bool) {
		for _, key := range r.properties.Keys() {
			if !yield(key, r.GetValue(key)) {
				return
			}
		}
	}
}
