/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"sync"
	"time"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/configenv"
	"github.com/uri-tech/catalogue-operator/internal/catalogue"
	"github.com/uri-tech/catalogue-operator/internal/reconciler"
	"github.com/uri-tech/catalogue-operator/internal/render"
	"github.com/uri-tech/catalogue-operator/internal/workload"
	"github.com/uri-tech/catalogue-operator/utils"
)

const (
	waitingRequeue = 15 * time.Second
	blockedRequeue = time.Minute
)

var (
	_ reconciler.Workload   = &workload.KubeFS{}
	_ reconciler.Supervisor = &workload.DeploymentSupervisor{}
	_ reconciler.CertSource = &workload.SecretCertSource{}
)

// CatalogueReconciler reconciles a Catalogue object
type CatalogueReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// Direct reads from the API server. The workload filesystem is read right
	// after it is written, which the cache does not guarantee. Defaults to Client.
	Direct   client.Client
	Executor workload.Executor
	Recorder record.EventRecorder
	Config   *configenv.ConfigEnv

	once     sync.Once
	cycles   *utils.NamedMutex
	restarts *utils.NamedMutex
}

//+kubebuilder:rbac:groups=catalogue.uri-tech.github.io,resources=catalogues,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=catalogue.uri-tech.github.io,resources=catalogues/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=catalogue.uri-tech.github.io,resources=catalogues/finalizers,verbs=update
//+kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;update;patch
//+kubebuilder:rbac:groups="",resources=configmaps;secrets,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;patch
//+kubebuilder:rbac:groups="",resources=pods/exec,verbs=create
//+kubebuilder:rbac:groups="",resources=events,verbs=create;patch
//+kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=cert-manager.io,resources=certificates,verbs=get;list;watch;create;update;patch;delete

func (r *CatalogueReconciler) init() {
	r.once.Do(func() {
		r.cycles = utils.NewNamedMutex()
		r.restarts = utils.NewNamedMutex()
		if r.Direct == nil {
			r.Direct = r.Client
		}
		if r.Config == nil {
			r.Config = &configenv.ConfigEnv{
				OperatorVersion:   "0.1.0",
				TrustStoreCommand: configenv.DefaultTrustStoreCommand,
				WorkloadContainer: "catalogue",
			}
		}
	})
}

// Reconcile runs one catalogue cycle against the workload named by the Catalogue
// and records its outcome in the status.
func (r *CatalogueReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	r.init()
	klog.V(2).InfoS("reconciling catalogue", "catalogue", req.NamespacedName)

	// cycles of one catalogue never overlap
	key := utils.ObjectKey(req.Namespace, req.Name)
	r.cycles.Lock(key)
	defer r.cycles.Unlock(key)

	cat := &cataloguev1.Catalogue{}
	if err := r.Get(ctx, req.NamespacedName, cat); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	if !cat.DeletionTimestamp.IsZero() {
		return ctrl.Result{}, nil
	}

	if err := r.ensureCertificate(ctx, cat); err != nil {
		return ctrl.Result{}, err
	}

	certSource := &workload.SecretCertSource{Client: r.Direct, Namespace: cat.Namespace, Name: cat.TLSSecretName()}
	obs := observation{OperatorVersion: r.Config.OperatorVersion}
	if material, err := certSource.Material(ctx); err != nil {
		klog.Errorf("unable to read TLS material of %s: %v", key, err)
		obs.CertificateHash = cat.Status.CertificateHash
	} else {
		obs.CertificateHash = material.Hash()
	}

	ingURL, err := r.observedIngressURL(ctx, cat)
	if err != nil {
		return ctrl.Result{}, err
	}
	obs.IngressURL = ingURL

	source := &catalogue.KubeRelationSource{Client: r.Client, Namespace: cat.Namespace, Catalogue: cat.Name}
	items, err := source.Items(ctx)
	if err != nil {
		return ctrl.Result{}, err
	}

	trigger := deriveTrigger(cat, obs)
	klog.InfoS("running catalogue cycle", "catalogue", key, "trigger", trigger.Kind(), "items", len(items))

	res := r.core(cat, certSource).Reconcile(ctx, reconciler.Input{
		Trigger:        trigger,
		Config:         renderConfig(cat),
		Items:          items,
		RestartPending: cat.Status.PendingRestart,
	})

	if res.State != reconciler.StateWaiting {
		if err := r.ensureIngress(ctx, cat, res.TLS); err != nil {
			klog.Errorf("unable to ensure ingress of %s: %v", key, err)
			r.Recorder.Eventf(cat, corev1.EventTypeWarning, "IngressFailed", "Unable to ensure ingress: %v", err)
		}
	}

	previous := cat.Status.Phase
	r.updateStatus(cat, res, obs, items)
	if err := r.Status().Update(ctx, cat); err != nil {
		klog.Errorf("unable to update status of %s: %v", key, err)
		return ctrl.Result{}, err
	}

	switch res.State {
	case reconciler.StateWaiting:
		return ctrl.Result{RequeueAfter: waitingRequeue}, nil
	case reconciler.StateBlocked:
		r.Recorder.Eventf(cat, corev1.EventTypeWarning, blockedReason(res.Err), "%s", res.Message)
		return ctrl.Result{RequeueAfter: blockedRequeue}, nil
	}

	if res.Restarted {
		r.Recorder.Eventf(cat, corev1.EventTypeNormal, "Restarted", "Restarted %s after configuration change", render.ServiceName)
	}
	if previous != cataloguev1.PhaseActive {
		r.Recorder.Event(cat, corev1.EventTypeNormal, ReasonActive, "Catalogue is being served")
	}
	return ctrl.Result{}, nil
}

// core wires the cycle to the Kubernetes-backed workload of cat.
func (r *CatalogueReconciler) core(cat *cataloguev1.Catalogue, certSource reconciler.CertSource) *reconciler.Reconciler {
	container := cat.Spec.Workload.Container
	if container == "" {
		container = r.Config.WorkloadContainer
	}
	owner := *metav1.NewControllerRef(cat, cataloguev1.GroupVersion.WithKind("Catalogue"))

	return &reconciler.Reconciler{
		Workload: &workload.KubeFS{
			Client:        r.Direct,
			Namespace:     cat.Namespace,
			Deployment:    cat.Spec.Workload.Deployment,
			ConfigMapName: cat.Name + "-files",
			SecretName:    cat.Name + "-certs",
			SecretDirs:    []string{render.CertsDir},
			OwnerRefs:     []metav1.OwnerReference{owner},
		},
		Supervisor: &workload.DeploymentSupervisor{
			Client:    r.Direct,
			Namespace: cat.Namespace,
			Name:      cat.Spec.Workload.Deployment,
			Container: container,
			Locks:     r.restarts,
		},
		Certs: certSource,
		Registrar: &workload.PodExecRegistrar{
			Client:     r.Direct,
			Executor:   r.Executor,
			Namespace:  cat.Namespace,
			Deployment: cat.Spec.Workload.Deployment,
			Container:  container,
			Command:    r.Config.TrustStoreArgv(),
		},
	}
}

func renderConfig(cat *cataloguev1.Catalogue) render.Config {
	return render.Config{
		Title:            cat.Spec.Title,
		Tagline:          cat.Spec.Tagline,
		Description:      cat.Spec.Description,
		Links:            cat.Spec.Links,
		OverrideHostname: cat.Spec.OverrideHostname,
	}
}

// updateStatus records res in cat.Status. What deriveTrigger compares against is
// only recorded once a cycle went through, so a failed cycle is retried with the
// same trigger.
func (r *CatalogueReconciler) updateStatus(cat *cataloguev1.Catalogue, res reconciler.Result, obs observation, items []catalogue.Item) {
	status := &cat.Status

	conditionStatus, reason, message := readyCondition(res)
	SetCondition(&status.Conditions, ConditionReady, conditionStatus, reason, message)
	status.Message = res.Message
	status.PendingRestart = res.RestartPending

	switch res.State {
	case reconciler.StateWaiting:
		status.Phase = cataloguev1.PhaseWaiting
		return
	case reconciler.StateBlocked:
		status.Phase = cataloguev1.PhaseBlocked
	default:
		status.Phase = cataloguev1.PhaseActive
		status.CertificateHash = obs.CertificateHash
		status.IngressURL = obs.IngressURL
		status.OperatorVersion = obs.OperatorVersion
	}
	status.ObservedGeneration = cat.Generation

	status.URL = render.InternalURL(cat.ServiceName(), cat.Namespace, res.TLS)
	if status.IngressURL != "" {
		status.URL = status.IngressURL
	}

	status.Items = make([]cataloguev1.CatalogueItemStatus, 0, len(items))
	for _, item := range items {
		u := item.URL
		if cat.Spec.OverrideHostname != "" {
			u = render.OverrideHostname(u, cat.Spec.OverrideHostname)
		}
		status.Items = append(status.Items, cataloguev1.CatalogueItemStatus{Name: item.Name, URL: u})
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *CatalogueReconciler) SetupWithManager(mgr ctrl.Manager) error {
	r.init()

	dataBags, err := predicate.LabelSelectorPredicate(metav1.LabelSelector{
		MatchExpressions: []metav1.LabelSelectorRequirement{{
			Key:      catalogue.RelationLabel,
			Operator: metav1.LabelSelectorOpExists,
		}},
	})
	if err != nil {
		return err
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&cataloguev1.Catalogue{}).
		Owns(&networkingv1.Ingress{}).
		Owns(&cmv1.Certificate{}).
		Watches(&corev1.ConfigMap{}, handler.EnqueueRequestsFromMapFunc(r.cataloguesForDataBag), builder.WithPredicates(dataBags)).
		Watches(&corev1.Pod{}, handler.EnqueueRequestsFromMapFunc(r.cataloguesForPod)).
		Watches(&appsv1.Deployment{}, handler.EnqueueRequestsFromMapFunc(r.cataloguesForDeployment)).
		Watches(&corev1.Secret{}, handler.EnqueueRequestsFromMapFunc(r.cataloguesForSecret)).
		Complete(r)
}
