package service

import "sync/atomic"

// SyncLock admits at most one sync run at a time. It never blocks: a second caller is told the lock is busy.
type SyncLock struct {
	held atomic.Bool
}

// NewSyncLock returns a released lock.
func NewSyncLock() *SyncLock {
	return &SyncLock{}
}

// TryAcquire takes the lock if it is free.
func (l *SyncLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Releasing a free lock is a no-op.
func (l *SyncLock) Release() {
	l.held.Store(false)
}

// IsHeld reports whether a run is in progress.
func (l *SyncLock) IsHeld() bool {
	return l.held.Load()
}
