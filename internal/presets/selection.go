package presets

// SelectionNone marks an encoder choice that was reset because it no longer
// fits. Starting an output with it fails instead of picking a default.
const SelectionNone = "none"

// Selection is a recording encoder and container pair.
type Selection struct {
	Encoder   string
	Container string
}

// Reconcile checks the selection against the container table and the
// available encoder types. An incompatible or unavailable encoder is reset
// to SelectionNone. The second return value reports whether a reset happened.
func Reconcile(sel Selection, available func(typeID string) bool) (Selection, bool) {
	if sel.Encoder == "" || sel.Encoder == SelectionNone {
		return sel, false
	}
	family, ok := LookupFamily(sel.Encoder)
	if !ok {
		sel.Encoder = SelectionNone
		return sel, true
	}
	if available != nil && !available(family.TypeID) {
		sel.Encoder = SelectionNone
		return sel, true
	}
	if c, ok := LookupContainer(sel.Container); ok && !c.Supports(family.Codec) {
		sel.Encoder = SelectionNone
		return sel, true
	}
	return sel, false
}

// Compatible lists the family ids usable with the named container.
func Compatible(container string, available func(typeID string) bool) []string {
	c, ok := LookupContainer(container)
	var ids []string
	for _, f := range families {
		if ok && !c.Supports(f.Codec) {
			continue
		}
		if available != nil && !available(f.TypeID) {
			continue
		}
		ids = append(ids, f.ID)
	}
	return ids
}
