// Package workload implements the workload collaborators of the reconciler on top
// of Kubernetes objects: files live in a ConfigMap and a Secret, the supervision
// layer and restarts are applied to the nginx Deployment, and the trust store is
// refreshed by running a command in a workload pod.
package workload

import "errors"

// ErrNotFound is returned by Read for a path that has no content.
var ErrNotFound = errors.New("path not found")
