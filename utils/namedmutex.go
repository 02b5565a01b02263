// Package utils holds small helpers shared by the operator packages.
package utils

import (
	"sync"
)

// NamedMutex hands out one lock per name. The controller uses it to keep
// reconciliation cycles for the same catalogue strictly sequential.
type NamedMutex struct {
	mu    sync.Mutex
	locks map[string]*namedLock
}

type namedLock struct {
	mu     sync.Mutex
	locked bool
}

// NewNamedMutex returns an empty NamedMutex.
func NewNamedMutex() *NamedMutex {
	return &NamedMutex{
		locks: make(map[string]*namedLock),
	}
}

func (n *NamedMutex) get(name string) *namedLock {
	n.mu.Lock()
	defer n.mu.Unlock()

	lk, ok := n.locks[name]
	if !ok {
		lk = &namedLock{}
		n.locks[name] = lk
	}
	return lk
}

// Lock blocks until the lock for name is held.
func (n *NamedMutex) Lock(name string) {
	lk := n.get(name)
	lk.mu.Lock()

	n.mu.Lock()
	lk.locked = true
	n.mu.Unlock()
}

// TryLock acquires the lock for name without waiting and reports whether it did.
func (n *NamedMutex) TryLock(name string) bool {
	lk := n.get(name)
	if !lk.mu.TryLock() {
		return false
	}

	n.mu.Lock()
	lk.locked = true
	n.mu.Unlock()
	return true
}

// Unlock releases the lock for name. Unlocking a name that is not held is a no-op.
func (n *NamedMutex) Unlock(name string) {
	n.mu.Lock()
	lk, ok := n.locks[name]
	if !ok || !lk.locked {
		n.mu.Unlock()
		return
	}
	lk.locked = false
	n.mu.Unlock()

	lk.mu.Unlock()
}

// IsLocked reports whether the lock for name is currently held.
func (n *NamedMutex) IsLocked(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if lk, ok := n.locks[name]; ok {
		return lk.locked
	}
	return false
}

// ObjectKey joins namespace and name the way cache.MetaNamespaceKeyFunc does.
func ObjectKey(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}
