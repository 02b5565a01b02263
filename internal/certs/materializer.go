// Package certs decides which TLS material is present on the workload.
package certs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/uri-tech/catalogue-operator/internal/render"
	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

var logger = loggerpkg.GetNamedLogger("certs")

// Paths lists the certificate files in the order they are written.
var Paths = []string{render.PrivateKeyPath, render.ServerCertPath, render.CACertPath}

// TLSMaterial is a server certificate, its private key and the issuing CA.
type TLSMaterial struct {
	ServerCert []byte
	PrivateKey []byte
	CACert     []byte
}

// NewTLSMaterial returns nil unless all three parts are non-empty.
func NewTLSMaterial(cert, key, ca []byte) *TLSMaterial {
	if len(cert) == 0 || len(key) == 0 || len(ca) == 0 {
		return nil
	}
	return &TLSMaterial{ServerCert: cert, PrivateKey: key, CACert: ca}
}

// Hash identifies the material; the empty string stands for no material.
func (m *TLSMaterial) Hash() string {
	if m == nil {
		return ""
	}
	h := sha256.New()
	for _, part := range [][]byte{m.ServerCert, m.PrivateKey, m.CACert} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Filesystem is the part of the workload filesystem the materializer needs.
type Filesystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	Write(ctx context.Context, path string, data []byte, makeDirs bool) error
	Remove(ctx context.Context, path string) error
}

// Registrar adds a CA certificate to the workload's trust store. Register may
// be called on every cycle and only has to act on instances that do not hold ca yet.
type Registrar interface {
	Register(ctx context.Context, ca []byte) error
}

// ErrNoInstances is returned by a Registrar when no workload instance is running.
var ErrNoInstances = errors.New("no running workload instance")

// MaterializationError reports a failed write, removal or trust-store registration.
type MaterializationError struct {
	Op   string
	Path string
	Err  error
}

func (e *MaterializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Materializer writes or removes the certificate files.
type Materializer struct {
	FS        Filesystem
	Registrar Registrar
}

// Materialize makes the workload match material. With material, the key, the
// certificate and the CA are written and the CA is registered with the trust
// store. Without material, the three files are removed.
func (m *Materializer) Materialize(ctx context.Context, material *TLSMaterial) error {
	if material == nil {
		logger.Info("no TLS material available, removing certificate files")
		for _, path := range Paths {
			if err := m.FS.Remove(ctx, path); err != nil {
				return &MaterializationError{Op: "remove", Path: path, Err: err}
			}
		}
		return nil
	}

	contents := map[string][]byte{
		render.PrivateKeyPath: material.PrivateKey,
		render.ServerCertPath: material.ServerCert,
		render.CACertPath:     material.CACert,
	}
	for _, path := range Paths {
		if err := m.FS.Write(ctx, path, contents[path], true); err != nil {
			return &MaterializationError{Op: "write", Path: path, Err: err}
		}
	}

	if m.Registrar != nil {
		if err := m.Registrar.Register(ctx, material.CACert); err != nil {
			return &MaterializationError{Op: "register CA certificate", Err: err}
		}
	}
	logger.Info("TLS material written to the workload")
	return nil
}

// Present reports whether all certificate files exist. Errors count as absent.
func Present(ctx context.Context, fs Filesystem) bool {
	for _, path := range Paths {
		ok, err := fs.Exists(ctx, path)
		if err != nil {
			logger.Warnf("cannot check %s: %v", path, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}
