package handler

import "github.com/roach88/rulecore/internal/status"

// Func is a native behavior function.
type Func func(key status.Key, now, last status.Evaluation)

// Callback is a revocable handle over a Func.
//
// Chunks own callbacks; handlers only refer to them. Once revoked a
// callback is never called again.
type Callback struct {
	fn Func
}

// NewCallback wraps fn. Returns nil for a nil fn.
func NewCallback(fn Func) *Callback {
	if fn == nil {
		return nil
	}
	return &Callback{fn: fn}
}

// Live reports whether the callback can still be called.
func (c *Callback) Live() bool {
	return c != nil && c.fn != nil
}

// Revoke releases the function.
func (c *Callback) Revoke() {
	if c != nil {
		c.fn = nil
	}
}

func (c *Callback) call(key status.Key, now, last status.Evaluation) bool {
	if !c.Live() {
		return false
	}
	c.fn(key, now, last)
	return true
}

// Delegate is a script-side behavior target.
type Delegate interface {
	Call(key status.Key, now, last status.Evaluation)
}

// Liveness is implemented by delegates that can expire. A delegate that
// does not implement it is always live.
type Liveness interface {
	Live() bool
}

func delegateLive(d Delegate) bool {
	if d == nil {
		return false
	}
	if l, ok := d.(Liveness); ok {
		return l.Live()
	}
	return true
}

// TargetKind tags which members of a Target are bound.
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetNative
	TargetScript
	TargetBoth
)

// String returns the kind name.
func (k TargetKind) String() string {
	switch k {
	case TargetNative:
		return "native"
	case TargetScript:
		return "script"
	case TargetBoth:
		return "both"
	default:
		return "none"
	}
}

// Target is a Native, Script or Both variant.
type Target struct {
	kind   TargetKind
	native *Callback
	script Delegate
}

// NativeTarget targets a native callback.
func NativeTarget(cb *Callback) Target {
	if cb == nil {
		return Target{}
	}
	return Target{kind: TargetNative, native: cb}
}

// ScriptTarget targets a script delegate.
func ScriptTarget(d Delegate) Target {
	if d == nil {
		return Target{}
	}
	return Target{kind: TargetScript, script: d}
}

// BothTargets targets a native callback and a script delegate; both are
// called for one match.
func BothTargets(cb *Callback, d Delegate) Target {
	switch {
	case cb == nil:
		return ScriptTarget(d)
	case d == nil:
		return NativeTarget(cb)
	}
	return Target{kind: TargetBoth, native: cb, script: d}
}

// Kind returns the variant tag.
func (t Target) Kind() TargetKind { return t.kind }

// Native returns the native callback, or nil.
func (t Target) Native() *Callback { return t.native }

// Script returns the script delegate, or nil.
func (t Target) Script() Delegate { return t.script }

// Live reports whether any member can still be called.
func (t Target) Live() bool {
	return t.native.Live() || delegateLive(t.script)
}
