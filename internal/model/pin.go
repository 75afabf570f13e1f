package model

// PinDirection is the flow direction of a structural pin.
type PinDirection int

const (
	PinIn PinDirection = iota
	PinOut
)

// Pin is a named, directional connection slot on a part ($in/$out), auto-
// wired to a same-named pin on a sibling part when exactly one candidate
// exists. Unresolved, unambiguous pins are dropped silently by digest
// stage 1; an ambiguous pin (more than one same-named candidate of the
// opposite direction among siblings) is reported as a DigestError.
type Pin struct {
	Name      string
	Direction PinDirection
	Owner     *EquationSet

	// Bound is filled by stage 1 once auto-wiring resolves a unique
	// partner; nil means unresolved.
	Bound *Pin
}
