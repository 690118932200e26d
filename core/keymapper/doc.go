// Package keymapper maintains the bidirectional registry between items and the
// short string keys sent to clients in their place.
//
// Keys are minted monotonically ("1", "2", ...) per distinct identity. The
// identity of an item is computed by a pluggable function, which defaults to
// the item itself. Re-fetching a record that is already known keeps its key and
// only replaces the stored instance.
//
// # Usage
//
//	m := keymapper.New[*Person]()
//	m.SetIdentityFunc(func(p *Person) any { return p.ID })
//	key := m.Key(person)      // "1"
//	same, _ := m.Get(key)     // person
//	_ = m.Refresh(updated)    // same ID, newer instance, key unchanged
//
// A Mapper is owned by exactly one reconciler and is never shared through
// package-level state.
package keymapper
