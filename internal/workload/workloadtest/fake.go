// Package workloadtest provides in-memory workload collaborators for tests.
package workloadtest

import (
	"context"
	"errors"
	"path"
	"sync"

	"github.com/uri-tech/catalogue-operator/internal/render"
	"github.com/uri-tech/catalogue-operator/internal/workload"
)

// MemFS is an in-memory workload filesystem that counts mutations.
type MemFS struct {
	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	Reachable bool
	// WriteErr, when set for a path, is returned by Write for that path.
	WriteErr map[string]error
	Writes   []string
	Removes  []string
}

// NewMemFS returns an empty, reachable filesystem.
func NewMemFS() *MemFS {
	return &MemFS{
		files:     map[string][]byte{},
		dirs:      map[string]bool{"/": true},
		Reachable: true,
		WriteErr:  map[string]error{},
	}
}

func (f *MemFS) CanConnect(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reachable
}

func (f *MemFS) Exists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[p]
	return ok, nil
}

func (f *MemFS) Read(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	if !ok {
		return nil, workload.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *MemFS) Write(_ context.Context, p string, data []byte, makeDirs bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErr[p]; err != nil {
		return err
	}
	dir := path.Dir(p)
	if !f.dirs[dir] {
		if !makeDirs {
			return errors.New("parent directory does not exist: " + dir)
		}
		for d := dir; !f.dirs[d]; d = path.Dir(d) {
			f.dirs[d] = true
		}
	}
	f.files[p] = append([]byte(nil), data...)
	f.Writes = append(f.Writes, p)
	return nil
}

func (f *MemFS) Remove(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; ok {
		delete(f.files, p)
		f.Removes = append(f.Removes, p)
	}
	return nil
}

// Put stores content without recording a write.
func (f *MemFS) Put(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = append([]byte(nil), data...)
	f.dirs[path.Dir(p)] = true
}

// File returns the content at p, or nil.
func (f *MemFS) File(p string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[p]
}

// ResetCounters forgets recorded writes and removals.
func (f *MemFS) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
	f.Removes = nil
}

// Supervisor is an in-memory process supervisor.
type Supervisor struct {
	mu         sync.Mutex
	Installed  render.Layer
	Installs   int
	Restarts   []string
	InstallErr error
	RestartErr error
}

func (s *Supervisor) Layer(_ context.Context) (render.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Installed, nil
}

func (s *Supervisor) InstallLayer(_ context.Context, layer render.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InstallErr != nil {
		return s.InstallErr
	}
	s.Installed = layer
	s.Installs++
	return nil
}

func (s *Supervisor) Restart(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RestartErr != nil {
		return s.RestartErr
	}
	s.Restarts = append(s.Restarts, service)
	return nil
}

// Registrar records registered CA certificates.
type Registrar struct {
	Registered [][]byte
	Err        error
}

func (r *Registrar) Register(_ context.Context, ca []byte) error {
	if r.Err != nil {
		return r.Err
	}
	r.Registered = append(r.Registered, ca)
	return nil
}
