package controller

import (
	"context"
	"errors"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	cmmeta "github.com/cert-manager/cert-manager/pkg/apis/meta/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/internal/certs"
	"github.com/uri-tech/catalogue-operator/internal/reconciler"
	"github.com/uri-tech/catalogue-operator/internal/render"
)

// certificateDNSNames lists the names the server certificate must cover.
func certificateDNSNames(cat *cataloguev1.Catalogue) []string {
	names := []string{render.ServiceFQDN(cat.ServiceName(), cat.Namespace)}
	if cat.Spec.Ingress != nil && cat.Spec.Ingress.Host != "" {
		names = append(names, cat.Spec.Ingress.Host)
	}
	if cat.Spec.TLS != nil {
		names = append(names, cat.Spec.TLS.ExtraDNSNames...)
	}

	seen := map[string]bool{}
	unique := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	return unique
}

// ensureCertificate creates or updates the cert-manager Certificate of the catalogue.
// Nothing is requested unless spec.tls.issuerRef is set.
func (r *CatalogueReconciler) ensureCertificate(ctx context.Context, cat *cataloguev1.Catalogue) error {
	if cat.Spec.TLS == nil || cat.Spec.TLS.IssuerRef == nil {
		return nil
	}

	cert := &cmv1.Certificate{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cat.Name,
			Namespace: cat.Namespace,
		},
	}

	op, err := controllerutil.CreateOrUpdate(ctx, r.Client, cert, func() error {
		dnsNames := certificateDNSNames(cat)
		issuer := cat.Spec.TLS.IssuerRef
		kind := issuer.Kind
		if kind == "" {
			kind = cmv1.IssuerKind
		}
		group := issuer.Group
		if group == "" {
			group = "cert-manager.io"
		}

		cert.Spec = cmv1.CertificateSpec{
			SecretName: cat.Spec.TLS.SecretName,
			CommonName: dnsNames[0],
			DNSNames:   dnsNames,
			IssuerRef: cmmeta.ObjectReference{
				Name:  issuer.Name,
				Kind:  kind,
				Group: group,
			},
		}
		return controllerutil.SetControllerReference(cat, cert, r.Scheme)
	})
	if err != nil {
		klog.Errorf("unable to ensure certificate for %s/%s: %v", cat.Namespace, cat.Name, err)
		return err
	}
	if op != controllerutil.OperationResultNone {
		klog.InfoS("certificate reconciled", "catalogue", client.ObjectKeyFromObject(cat), "operation", op)
	}
	return nil
}

// desiredIngressSpec routes every path of the ingress host to the workload Service.
func desiredIngressSpec(cat *cataloguev1.Catalogue, tls bool) networkingv1.IngressSpec {
	port := int32(render.HTTPPort)
	if tls {
		port = render.HTTPSPort
	}
	pathType := networkingv1.PathTypePrefix

	return networkingv1.IngressSpec{
		IngressClassName: cat.Spec.Ingress.ClassName,
		Rules: []networkingv1.IngressRule{{
			Host: cat.Spec.Ingress.Host,
			IngressRuleValue: networkingv1.IngressRuleValue{
				HTTP: &networkingv1.HTTPIngressRuleValue{
					Paths: []networkingv1.HTTPIngressPath{{
						Path:     "/",
						PathType: &pathType,
						Backend: networkingv1.IngressBackend{
							Service: &networkingv1.IngressServiceBackend{
								Name: cat.ServiceName(),
								Port: networkingv1.ServiceBackendPort{Number: port},
							},
						},
					}},
				},
			},
		}},
	}
}

// ensureIngress keeps the owned Ingress in line with spec.ingress, deleting it when
// spec.ingress is unset.
func (r *CatalogueReconciler) ensureIngress(ctx context.Context, cat *cataloguev1.Catalogue, tls bool) error {
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cat.Name,
			Namespace: cat.Namespace,
		},
	}

	if cat.Spec.Ingress == nil {
		if err := r.Get(ctx, client.ObjectKeyFromObject(ing), ing); err != nil {
			return client.IgnoreNotFound(err)
		}
		if !metav1.IsControlledBy(ing, cat) {
			return nil
		}
		klog.Infof("deleting ingress %s/%s", ing.Namespace, ing.Name)
		return client.IgnoreNotFound(r.Delete(ctx, ing))
	}

	_, err := controllerutil.CreateOrUpdate(ctx, r.Client, ing, func() error {
		ing.Spec = desiredIngressSpec(cat, tls)
		setBackendProtocol(ing, tls)
		return controllerutil.SetControllerReference(cat, ing, r.Scheme)
	})
	return err
}

// observedIngressURL returns the URL the ingress controller published for the
// catalogue, or "" when there is none yet.
func (r *CatalogueReconciler) observedIngressURL(ctx context.Context, cat *cataloguev1.Catalogue) (string, error) {
	if cat.Spec.Ingress == nil {
		return "", nil
	}

	ing := &networkingv1.Ingress{}
	err := r.Get(ctx, client.ObjectKey{Namespace: cat.Namespace, Name: cat.Name}, ing)
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ingressURL(ing), nil
}

// ingressURL is "<scheme>://<host>/" once the load balancer has an address.
func ingressURL(ing *networkingv1.Ingress) string {
	if len(ing.Status.LoadBalancer.Ingress) == 0 || len(ing.Spec.Rules) == 0 || ing.Spec.Rules[0].Host == "" {
		return ""
	}
	scheme := "http"
	if len(ing.Spec.TLS) > 0 {
		scheme = "https"
	}
	return scheme + "://" + ing.Spec.Rules[0].Host + "/"
}

// blockedReason classifies the error of a blocked cycle.
func blockedReason(err error) string {
	var (
		matErr     *certs.MaterializationError
		writeErr   *reconciler.WriteError
		layerErr   *reconciler.LayerError
		restartErr *reconciler.RestartError
	)
	switch {
	case reconciler.IsConfigError(err):
		return ReasonInvalidConfig
	case errors.As(err, &matErr):
		return ReasonCertificate
	case errors.As(err, &writeErr):
		return ReasonWriteFailed
	case errors.As(err, &layerErr):
		return ReasonLayerFailed
	case errors.As(err, &restartErr):
		return ReasonRestartFailed
	}
	return ReasonBlocked
}
