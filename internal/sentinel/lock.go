package sentinel

import "context"

// LockProbe reports whether the interactive session is locked.
type LockProbe interface {
	Locked(ctx context.Context) (bool, error)
}

// NoLock is a LockProbe that never reports a locked session.
type NoLock struct{}

func (NoLock) Locked(context.Context) (bool, error) { return false, nil }
