package service

import "sync"

// Uploads tracks the files whose upload has not settled yet.
// A file is in flight from its first chunk write until its manifest commit returns.
type Uploads struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewUploads returns an empty Uploads.
func NewUploads() *Uploads {
	return &Uploads{
		ids: map[string]struct{}{},
	}
}

// InFlight reports whether the given file is being uploaded.
func (u *Uploads) InFlight(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	_, ok := u.ids[id]
	return ok
}

// WhenSettled runs fn unless the given file is in flight and reports whether it ran.
// No upload can start nor settle while fn runs.
func (u *Uploads) WhenSettled(id string, fn func() error) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.ids[id]; ok {
		return false, nil
	}
	return true, fn()
}

func (u *Uploads) register(id string) {
	u.mu.Lock()
	u.ids[id] = struct{}{}
	u.mu.Unlock()
}

func (u *Uploads) release(id string) {
	u.mu.Lock()
	delete(u.ids, id)
	u.mu.Unlock()
}
