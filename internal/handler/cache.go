package handler

import "github.com/roach88/rulecore/internal/status"

// Cache freezes a matched handler together with the evaluation change that
// matched it, so the call can happen after detection finishes.
type Cache struct {
	Handler Handler
	Key     status.Key
	Now     status.Evaluation
	Last    status.Evaluation
}

// NewCache freezes a call of h for expression key.
func NewCache(h Handler, key status.Key, now, last status.Evaluation) Cache {
	return Cache{Handler: h, Key: key, Now: now, Last: last}
}

// CallFunction invokes the bound targets. A revoked callback or an expired
// delegate is skipped. Returns the number of targets called.
func (c Cache) CallFunction() int {
	called := 0
	t := c.Handler.Target
	if t.native.call(c.Key, c.Now, c.Last) {
		called++
	}
	if delegateLive(t.script) {
		t.script.Call(c.Key, c.Now, c.Last)
		called++
	}
	return called
}
