package keymapper

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
)

// NullKey is returned by Key for a nil item. It never occupies a counter slot.
const NullKey = "null"

// ErrNilItem is returned when a nil item is passed to an identity operation.
var ErrNilItem = errors.New("keymapper: nil item")

// IdentityFunc computes the logical identity of an item. The returned value
// must be comparable and stable for the same record across fetches.
type IdentityFunc[T any] func(item T) any

// Mapper assigns stable keys to items based on their identity.
type Mapper[T any] struct {
	mu       sync.RWMutex
	identity IdentityFunc[T]
	keys     map[any]string
	items    map[string]T
	last     int
}

// New creates an empty mapper using the item itself as identity.
func New[T any]() *Mapper[T] {
	return &Mapper[T]{
		identity: func(item T) any { return item },
		keys:     make(map[any]string),
		items:    make(map[string]T),
	}
}

// Key returns the key of the item, minting a new one on first encounter.
func (m *Mapper[T]) Key(item T) string {
	if isNil(item) {
		return NullKey
	}

	id := m.identify(item)

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.keys[id]; ok {
		return key
	}

	m.last++
	key := strconv.Itoa(m.last)
	m.keys[id] = key
	m.items[key] = item
	return key
}

// Has reports whether the item's identity already has a key.
func (m *Mapper[T]) Has(item T) bool {
	if isNil(item) {
		return false
	}
	id := m.identify(item)

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[id]
	return ok
}

// KeyOf returns the existing key for the item without minting one.
func (m *Mapper[T]) KeyOf(item T) (string, bool) {
	if isNil(item) {
		return "", false
	}
	id := m.identify(item)

	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[id]
	return key, ok
}

// Get returns the latest instance stored under key.
func (m *Mapper[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	return item, ok
}

// Remove forgets the item's identity and its key.
func (m *Mapper[T]) Remove(item T) {
	if isNil(item) {
		return
	}
	id := m.identify(item)

	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		delete(m.keys, id)
		delete(m.items, key)
	}
}

// RemoveKey forgets the item stored under key together with its identity.
func (m *Mapper[T]) RemoveKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return
	}
	delete(m.items, key)
	id := m.identity(item)
	if m.keys[id] == key {
		delete(m.keys, id)
	}
}

// Refresh replaces the stored instance of an already known identity. The key
// stays the same. Unknown identities are ignored.
func (m *Mapper[T]) Refresh(item T) error {
	if isNil(item) {
		return ErrNilItem
	}
	id := m.identify(item)

	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		m.items[key] = item
	}
	return nil
}

// RemoveAll clears both directions of the mapping. The key counter keeps
// running so keys are never reused.
func (m *Mapper[T]) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = make(map[any]string)
	m.items = make(map[string]T)
}

// SetIdentityFunc replaces the identity function and rebuilds the identity
// index from the stored items. Previously issued keys stay valid.
// A nil function restores the default identity.
func (m *Mapper[T]) SetIdentityFunc(fn IdentityFunc[T]) {
	if fn == nil {
		fn = func(item T) any { return item }
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = fn
	keys := make(map[any]string, len(m.items))
	for key, item := range m.items {
		keys[m.identifyLocked(item)] = key
	}
	m.keys = keys
}

// IdentityOf returns the identity of item under the current identity function.
func (m *Mapper[T]) IdentityOf(item T) any {
	return m.identify(item)
}

// Len returns the number of mapped keys.
func (m *Mapper[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Mapper[T]) identify(item T) any {
	m.mu.RLock()
	fn := m.identity
	m.mu.RUnlock()
	return checkComparable(fn(item))
}

func (m *Mapper[T]) identifyLocked(item T) any {
	return checkComparable(m.identity(item))
}

func checkComparable(id any) any {
	if id != nil && !reflect.TypeOf(id).Comparable() {
		panic(fmt.Sprintf("keymapper: identity of type %T is not comparable, configure an identity function", id))
	}
	return id
}

// isNil reports whether v is nil, including typed nil pointers, maps, slices,
// channels, functions and interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
