package controller

import (
	"context"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/internal/catalogue"
)

func requestsFor(namespace string, names map[string]bool) []reconcile.Request {
	requests := make([]reconcile.Request, 0, len(names))
	for name := range names {
		requests = append(requests, reconcile.Request{NamespacedName: types.NamespacedName{Namespace: namespace, Name: name}})
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].Name < requests[j].Name })
	return requests
}

// cataloguesForDataBag enqueues the catalogue a data bag contributes to.
func (r *CatalogueReconciler) cataloguesForDataBag(ctx context.Context, obj client.Object) []reconcile.Request {
	name := obj.GetLabels()[catalogue.RelationLabel]
	if name == "" {
		return nil
	}
	return requestsFor(obj.GetNamespace(), map[string]bool{name: true})
}

// cataloguesForPod enqueues the catalogues an application contributes to, so that
// a unit joining or leaving changes the listed items.
func (r *CatalogueReconciler) cataloguesForPod(ctx context.Context, obj client.Object) []reconcile.Request {
	app := obj.GetLabels()[catalogue.AppLabel]
	if app == "" {
		return nil
	}

	bags := &corev1.ConfigMapList{}
	if err := r.List(ctx, bags, client.InNamespace(obj.GetNamespace()), client.MatchingLabels{catalogue.AppLabel: app}); err != nil {
		klog.Errorf("unable to list data bags of %s: %v", app, err)
		return nil
	}

	names := map[string]bool{}
	for _, cm := range bags.Items {
		if name := cm.Labels[catalogue.RelationLabel]; name != "" {
			names[name] = true
		}
	}
	return requestsFor(obj.GetNamespace(), names)
}

// cataloguesForDeployment enqueues the catalogues served by a Deployment.
func (r *CatalogueReconciler) cataloguesForDeployment(ctx context.Context, obj client.Object) []reconcile.Request {
	return r.cataloguesMatching(ctx, obj.GetNamespace(), func(cat *cataloguev1.Catalogue) bool {
		return cat.Spec.Workload.Deployment == obj.GetName()
	})
}

// cataloguesForSecret enqueues the catalogues whose TLS material is in a Secret.
func (r *CatalogueReconciler) cataloguesForSecret(ctx context.Context, obj client.Object) []reconcile.Request {
	return r.cataloguesMatching(ctx, obj.GetNamespace(), func(cat *cataloguev1.Catalogue) bool {
		return cat.TLSSecretName() == obj.GetName()
	})
}

func (r *CatalogueReconciler) cataloguesMatching(ctx context.Context, namespace string, match func(*cataloguev1.Catalogue) bool) []reconcile.Request {
	list := &cataloguev1.CatalogueList{}
	if err := r.List(ctx, list, client.InNamespace(namespace)); err != nil {
		klog.Errorf("unable to list catalogues in %s: %v", namespace, err)
		return nil
	}

	names := map[string]bool{}
	for i := range list.Items {
		if match(&list.Items[i]) {
			names[list.Items[i].Name] = true
		}
	}
	return requestsFor(namespace, names)
}
