package locking

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Locker serializes writers on a set of keys. Lock acquires every key or
// none; the returned unlock releases them all and ignores repeated calls.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// LineKey names the write lock of a line.
func LineKey(lineID string) string { return "line:" + lineID }

// StationKey names the lock that pins a station while sections reference it.
func StationKey(stationID string) string { return "station:" + stationID }

// Keys sorts and dedupes keys so every caller acquires them in the same order.
func Keys(keys ...string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			return nil, errors.New("locker: empty key")
		}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil, errors.New("locker: no keys")
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// KeyedLocker is an in-process Locker with one slot per key.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker constructs a KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*lockSlot)}
}

// Lock blocks until all keys are free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if l == nil {
		return nil, errors.New("locker: nil locker")
	}
	ordered, err := Keys(keys...)
	if err != nil {
		return nil, err
	}

	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := l.acquire(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

func (l *KeyedLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot := l.slots[key]
	if slot == nil {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, slot)
		return ctx.Err()
	}
}

func (l *KeyedLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		slot := l.slots[keys[i]]
		l.mu.Unlock()
		<-slot.ch
		l.drop(keys[i], slot)
	}
}

func (l *KeyedLocker) drop(key string, slot *lockSlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}
