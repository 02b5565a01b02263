package workload

import (
	"context"
	"fmt"

	cmmeta "github.com/cert-manager/cert-manager/pkg/apis/meta/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/uri-tech/catalogue-operator/internal/certs"
)

// SecretCertSource reads TLS material from a kubernetes.io/tls Secret as written
// by cert-manager. A missing Secret or missing key means no material.
type SecretCertSource struct {
	Client    client.Reader
	Namespace string
	Name      string
}

// Material implements reconciler.CertSource.
func (s *SecretCertSource) Material(ctx context.Context) (*certs.TLSMaterial, error) {
	if s.Name == "" {
		return nil, nil
	}

	secret := &corev1.Secret{}
	err := s.Client.Get(ctx, client.ObjectKey{Namespace: s.Namespace, Name: s.Name}, secret)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get TLS secret %s/%s: %w", s.Namespace, s.Name, err)
	}

	return certs.NewTLSMaterial(
		secret.Data[corev1.TLSCertKey],
		secret.Data[corev1.TLSPrivateKeyKey],
		secret.Data[cmmeta.TLSCAKey],
	), nil
}
