//go:build linux

// Package caps drops Linux capabilities before exec, as part of §4's
// "unprivileged execution identity" alongside the uid drop. Adapted from
// the teacher's sandbox/capabilities.go, with the default capability set
// narrowed from Docker parity (CAP_CHOWN, CAP_NET_BIND_SERVICE, ...) to
// empty: sandboxed submissions run arbitrary untrusted code and need no
// capability by default, unlike a general-purpose container runtime.
package caps

import (
	"fmt"
	"strings"

	"github.com/moby/sys/capability"
)

// CapSet is a small set type for capabilities, identical in shape to the
// teacher's CapSet.
type CapSet map[capability.Cap]struct{}

// NewCapSet builds a CapSet from the given capability IDs.
func NewCapSet(ids ...capability.Cap) CapSet {
	cs := make(CapSet, len(ids))
	cs.Add(ids...)
	return cs
}

// Add inserts capabilities into the set.
func (cs CapSet) Add(ids ...capability.Cap) {
	for _, id := range ids {
		cs[id] = struct{}{}
	}
}

// Remove deletes capabilities from the set.
func (cs CapSet) Remove(ids ...capability.Cap) {
	for _, id := range ids {
		delete(cs, id)
	}
}

// Slice copies the set out as a plain slice.
func (cs CapSet) Slice() []capability.Cap {
	out := make([]capability.Cap, 0, len(cs))
	for id := range cs {
		out = append(out, id)
	}
	return out
}

// Options configures the capability sets applied before exec.
type Options struct {
	Add  CapSet
	Drop CapSet
}

// NormalizeCap lowercases a capability name and strips a leading CAP_.
func NormalizeCap(cap string) string {
	s := strings.TrimSpace(strings.ToLower(cap))
	return strings.TrimPrefix(s, "cap_")
}

var capNameToID = func() map[string]capability.Cap {
	m := make(map[string]capability.Cap)
	for _, c := range capability.ListKnown() {
		m[c.String()] = c
	}
	return m
}()

// FromName resolves a capability name (with or without the CAP_ prefix,
// any case) to its capability.Cap ID.
func FromName(name string) (capability.Cap, error) {
	name = NormalizeCap(name)
	if id, ok := capNameToID[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown capability: %q", name)
}

// FromNames resolves a list of capability names.
func FromNames(names []string) ([]capability.Cap, error) {
	var out []capability.Cap
	for _, n := range names {
		id, err := FromName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// buildSets computes the effective capability sets: empty by default,
// plus Add, minus Drop.
func (o Options) buildSets() map[capability.CapType][]capability.Cap {
	capSet := NewCapSet()
	if len(o.Add) > 0 {
		capSet.Add(o.Add.Slice()...)
	}
	if len(o.Drop) > 0 {
		capSet.Remove(o.Drop.Slice()...)
	}

	final := capSet.Slice()
	return map[capability.CapType][]capability.Cap{
		capability.BOUNDING:    final,
		capability.PERMITTED:   final,
		capability.EFFECTIVE:   final,
		capability.INHERITABLE: final,
	}
}

// Apply clears the current process's capability sets down to the set
// computed from opts (empty by default) and applies it. Must run before
// the seccomp filter is installed and before exec.
func Apply(opts Options) error {
	sets := opts.buildSets()

	c, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("get process capabilities: %w", err)
	}

	c.Clear(capability.BOUNDS)
	c.Set(capability.BOUNDING, sets[capability.BOUNDING]...)

	c.Clear(capability.CAPS)
	c.Set(capability.PERMITTED, sets[capability.PERMITTED]...)
	c.Set(capability.EFFECTIVE, sets[capability.EFFECTIVE]...)
	c.Set(capability.INHERITABLE, sets[capability.INHERITABLE]...)

	c.Clear(capability.AMBIENT)

	if err := c.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("set capabilities: %w", err)
	}
	return nil
}
