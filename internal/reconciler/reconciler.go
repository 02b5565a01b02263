// Package reconciler runs one reconciliation cycle of a catalogue workload. A
// cycle rewrites the artifacts that differ from what the workload holds and
// restarts nginx only when at least one of them changed.
package reconciler

import (
	"bytes"
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"

	"github.com/uri-tech/catalogue-operator/internal/catalogue"
	"github.com/uri-tech/catalogue-operator/internal/certs"
	"github.com/uri-tech/catalogue-operator/internal/render"
	"github.com/uri-tech/catalogue-operator/loggerpkg"
	"github.com/uri-tech/catalogue-operator/metrics"
)

var logger = loggerpkg.GetNamedLogger("reconciler")

// Workload is the filesystem of the managed nginx container. Callers must check
// CanConnect before any other call. Writes must be visible to the next Read.
type Workload interface {
	CanConnect(ctx context.Context) bool
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, makeDirs bool) error
	Remove(ctx context.Context, path string) error
}

// Supervisor manages the nginx process.
type Supervisor interface {
	Layer(ctx context.Context) (render.Layer, error)
	InstallLayer(ctx context.Context, layer render.Layer) error
	Restart(ctx context.Context, service string) error
}

// CertSource returns the current TLS material, or nil when there is none.
type CertSource interface {
	Material(ctx context.Context) (*certs.TLSMaterial, error)
}

// State is the terminal state of a cycle.
type State string

const (
	StateActive  State = "active"
	StateBlocked State = "blocked"
	StateWaiting State = "waiting"
)

// Artifact names used in logs and metrics.
const (
	ArtifactNginx     = "nginx-config"
	ArtifactCatalogue = "catalogue-config"
	ArtifactLayer     = "layer"
)

// Input is everything a cycle needs besides the collaborators.
type Input struct {
	Trigger Trigger
	Config  render.Config
	Items   []catalogue.Item
	// RestartPending carries Result.RestartPending of the previous cycle.
	RestartPending bool
}

// Changes records which artifacts a cycle rewrote.
type Changes struct {
	NginxConfig     bool
	CatalogueConfig bool
	Layer           bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.NginxConfig || c.CatalogueConfig || c.Layer
}

// Result is the outcome of a cycle.
type Result struct {
	State State
	// Message is a one-sentence diagnostic for blocked and waiting cycles.
	Message   string
	Err       error
	Changes   Changes
	Restarted bool
	TLS       bool
	// RestartPending is set when artifacts on the workload are newer than what
	// nginx was last started with. The next cycle restarts even if it writes nothing.
	RestartPending bool
}

// Reconciler holds the collaborators of the cycle.
type Reconciler struct {
	Workload   Workload
	Supervisor Supervisor
	Certs      CertSource
	Registrar  certs.Registrar
}

// Reconcile runs one cycle. It never panics on collaborator errors; failures
// are reported in the Result.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) Result {
	start := time.Now()
	res := r.reconcile(ctx, in)
	res.RestartPending = !res.Restarted && (in.RestartPending || res.Changes.Any())

	metrics.RecordCycle(string(res.State))
	metrics.RecordReconcileDuration(time.Since(start).Seconds())
	if res.State == StateActive {
		logger.Infof("cycle for %s finished, changes: %+v, restarted: %v", kind(in.Trigger), res.Changes, res.Restarted)
	} else {
		logger.Warnf("cycle for %s ended %s: %s", kind(in.Trigger), res.State, res.Message)
	}
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, in Input) Result {
	if !r.Workload.CanConnect(ctx) {
		return Result{State: StateWaiting, Message: "Waiting for the workload to become reachable", Err: ErrUnreachable}
	}

	var res Result
	material, certErr := r.Certs.Material(ctx)
	if in.Trigger != nil && RequiresCertSync(in.Trigger) {
		if certErr != nil {
			return blocked(res, &certs.MaterializationError{Op: "read TLS material", Err: certErr})
		}
		m := &certs.Materializer{FS: r.Workload, Registrar: r.Registrar}
		if err := m.Materialize(ctx, material); err != nil {
			return blocked(res, err)
		}
		res.TLS = material != nil && certs.Present(ctx, r.Workload)
	} else {
		// without a sync, TLS follows the files already on the workload
		if certErr != nil {
			logger.Warnf("unable to read TLS material, keeping what is materialized: %v", certErr)
		}
		res.TLS = (material != nil || certErr != nil) && certs.Present(ctx, r.Workload)
		if res.TLS {
			if err := r.keepTrusted(ctx); err != nil {
				return blocked(res, err)
			}
		}
	}

	catalogueConfig, err := render.RenderCatalogue(in.Config, in.Items)
	if err != nil {
		return blocked(res, err)
	}
	nginxConfig := render.RenderNginx(res.TLS)

	logger.Infof("configuring %d application entries", len(in.Items))

	// Writes are best-effort per artifact; the first failure is reported once the cycle completes.
	var writeErr error
	res.Changes.NginxConfig, err = r.syncFile(ctx, ArtifactNginx, render.NginxConfigPath, nginxConfig)
	if err != nil && writeErr == nil {
		writeErr = err
	}
	res.Changes.CatalogueConfig, err = r.syncFile(ctx, ArtifactCatalogue, render.CataloguePath, catalogueConfig)
	if err != nil && writeErr == nil {
		writeErr = err
	}

	res.Changes.Layer, err = r.syncLayer(ctx)
	if err != nil {
		return blocked(res, err)
	}

	if res.Changes.Any() || in.RestartPending {
		if err := r.Supervisor.Restart(ctx, render.ServiceName); err != nil {
			return blocked(res, &RestartError{Service: render.ServiceName, Err: err})
		}
		res.Restarted = true
		metrics.IncrementRestarts()
	}

	if writeErr != nil {
		return blocked(res, writeErr)
	}

	res.State = StateActive
	return res
}

// syncFile writes desired to path when it differs from the observed content.
// An unreadable or missing file is observed as empty.
func (r *Reconciler) syncFile(ctx context.Context, artifact, path string, desired []byte) (bool, error) {
	observed, err := r.Workload.Read(ctx, path)
	if err != nil {
		logger.Debugf("observing %s as empty: %v", path, err)
	} else if bytes.Equal(observed, desired) {
		return false, nil
	}

	if err := r.Workload.Write(ctx, path, desired, true); err != nil {
		logger.Errorf("failed to write %s: %v", path, err)
		return false, &WriteError{Path: path, Err: err}
	}
	metrics.RecordArtifactWrite(artifact)
	return true, nil
}

// keepTrusted registers the materialized CA with workload instances that
// started after the last registration.
func (r *Reconciler) keepTrusted(ctx context.Context) error {
	if r.Registrar == nil {
		return nil
	}
	ca, err := r.Workload.Read(ctx, render.CACertPath)
	if err != nil {
		return &certs.MaterializationError{Op: "read", Path: render.CACertPath, Err: err}
	}
	if err := r.Registrar.Register(ctx, ca); err != nil {
		if errors.Is(err, certs.ErrNoInstances) {
			logger.Debugf("no workload instance to register the CA certificate in yet")
			return nil
		}
		return &certs.MaterializationError{Op: "register CA certificate", Err: err}
	}
	return nil
}

func (r *Reconciler) syncLayer(ctx context.Context) (bool, error) {
	desired := render.DesiredLayer()

	installed, err := r.Supervisor.Layer(ctx)
	if err != nil {
		logger.Debugf("observing layer as empty: %v", err)
		installed = render.Layer{}
	}
	if equality.Semantic.DeepEqual(installed, desired) {
		return false, nil
	}

	if err := r.Supervisor.InstallLayer(ctx, desired); err != nil {
		return false, &LayerError{Err: err}
	}
	metrics.RecordArtifactWrite(ArtifactLayer)
	return true, nil
}

func blocked(res Result, err error) Result {
	res.State = StateBlocked
	res.Err = err
	res.Message = err.Error()
	return res
}

func kind(t Trigger) string {
	if t == nil {
		return "unknown"
	}
	return t.Kind()
}

// IsConfigError reports whether err is a configuration error that needs operator action.
func IsConfigError(err error) bool {
	var cfgErr *render.ConfigError
	return errors.As(err, &cfgErr)
}
