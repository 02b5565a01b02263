// internal/controller/catalogue_controller_test.go

package controller

import (
	"context"
	"io"
	"sync"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakec "sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/internal/catalogue"
	"github.com/uri-tech/catalogue-operator/internal/workload"
	"github.com/uri-tech/catalogue-operator/utils"
)

const (
	namespace      = "default"
	catalogueName  = "catalogue"
	deploymentName = "catalogue-nginx"
)

// recordingExecutor accepts every command and remembers the pods it ran in.
type recordingExecutor struct {
	mu    sync.Mutex
	pods  []string
	input []string
}

func (e *recordingExecutor) Exec(_ context.Context, _, pod, _ string, _ []string, stdin io.Reader) (string, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, _ := io.ReadAll(stdin)
	e.pods = append(e.pods, pod)
	e.input = append(e.input, string(data))
	return "", "", nil
}

func nginxDeployment() *appsv1.Deployment {
	labels := map[string]string{"app": deploymentName}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName, Namespace: namespace},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "catalogue", Image: "nginx"}},
				},
			},
		},
	}
}

func runningPod(name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func dataBag(app string, item catalogue.Item) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      catalogue.DataBagName(catalogueName, app),
			Namespace: namespace,
			Labels: map[string]string{
				catalogue.RelationLabel: catalogueName,
				catalogue.AppLabel:      app,
			},
		},
		Data: item.DataBag(),
	}
}

func newCatalogue(mutate func(*cataloguev1.Catalogue)) *cataloguev1.Catalogue {
	cat := &cataloguev1.Catalogue{
		ObjectMeta: metav1.ObjectMeta{Name: catalogueName, Namespace: namespace, Generation: 1},
		Spec: cataloguev1.CatalogueSpec{
			Title:    "Catalogue",
			Tagline:  "Everything in one place",
			Workload: cataloguev1.WorkloadRef{Deployment: deploymentName},
		},
	}
	if mutate != nil {
		mutate(cat)
	}
	return cat
}

var _ = Describe("CatalogueReconciler", func() {
	var (
		ctx        context.Context
		fakeClient client.Client
		recorder   *record.FakeRecorder
		executor   *recordingExecutor
		r          *CatalogueReconciler
		req        reconcile.Request
	)

	setup := func(objs ...client.Object) {
		fakeClient = fakec.NewClientBuilder().
			WithScheme(scheme.Scheme).
			WithStatusSubresource(&cataloguev1.Catalogue{}).
			WithObjects(objs...).
			Build()
		recorder = record.NewFakeRecorder(20)
		executor = &recordingExecutor{}
		r = &CatalogueReconciler{
			Client:   fakeClient,
			Scheme:   scheme.Scheme,
			Executor: executor,
			Recorder: recorder,
		}
	}

	getCatalogue := func() *cataloguev1.Catalogue {
		cat := &cataloguev1.Catalogue{}
		Expect(fakeClient.Get(ctx, req.NamespacedName, cat)).To(Succeed())
		return cat
	}

	getFiles := func() *corev1.ConfigMap {
		cm := &corev1.ConfigMap{}
		Expect(fakeClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: catalogueName + "-files"}, cm)).To(Succeed())
		return cm
	}

	getDeployment := func() *appsv1.Deployment {
		deploy := &appsv1.Deployment{}
		Expect(fakeClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: deploymentName}, deploy)).To(Succeed())
		return deploy
	}

	restartedAt := func() string {
		return getDeployment().Spec.Template.Annotations[workload.RestartedAtAnnotation]
	}

	BeforeEach(func() {
		ctx = context.Background()
		req = reconcile.Request{NamespacedName: types.NamespacedName{Namespace: namespace, Name: catalogueName}}
	})

	Context("when the Catalogue does not exist", func() {
		It("should not return an error", func() {
			setup()
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("when the workload Deployment is missing", func() {
		It("should wait and requeue", func() {
			setup(newCatalogue(nil))

			result, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(waitingRequeue))

			cat := getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseWaiting))
			cond := GetCondition(cat.Status.Conditions, ConditionReady)
			Expect(cond).ToNot(BeNil())
			Expect(cond.Status).To(Equal(metav1.ConditionFalse))
			Expect(cond.Reason).To(Equal(ReasonWaiting))
		})
	})

	Context("with a reachable workload and one joined application", func() {
		BeforeEach(func() {
			setup(
				newCatalogue(nil),
				nginxDeployment(),
				dataBag("grafana", catalogue.Item{Name: "Grafana", URL: "http://grafana:3000/", Icon: "bar-chart"}),
				runningPod("grafana-0", map[string]string{catalogue.AppLabel: "grafana"}),
				dataBag("idle", catalogue.Item{Name: "Idle", URL: "http://idle/"}),
			)
		})

		It("should publish the catalogue and roll nginx once", func() {
			result, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(Equal(reconcile.Result{}))

			files := getFiles()
			Expect(files.Data["web_config.json"]).To(ContainSubstring(`"name":"Grafana"`))
			Expect(files.Data["web_config.json"]).ToNot(ContainSubstring("Idle"))
			Expect(files.Data["etc_nginx_nginx.conf"]).To(ContainSubstring("listen               80;"))

			cat := getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseActive))
			Expect(cat.Status.URL).To(Equal("http://catalogue-nginx.default.svc.cluster.local:80"))
			Expect(cat.Status.ObservedGeneration).To(Equal(int64(1)))
			Expect(cat.Status.OperatorVersion).To(Equal("0.1.0"))
			Expect(cat.Status.Items).To(Equal([]cataloguev1.CatalogueItemStatus{{Name: "Grafana", URL: "http://grafana:3000/"}}))
			Expect(GetCondition(cat.Status.Conditions, ConditionReady).Status).To(Equal(metav1.ConditionTrue))

			// the new container command rolls the pods, no separate restart is needed
			Expect(getDeployment().Spec.Template.Spec.Containers[0].Command).To(ContainElement(ContainSubstring("nginx -g")))
			Expect(restartedAt()).To(BeEmpty())
			Expect(cat.Status.PendingRestart).To(BeFalse())
			Expect(recorder.Events).To(Receive(ContainSubstring("Restarted")))
			Expect(recorder.Events).To(Receive(ContainSubstring("Normal Active")))
		})

		It("should not restart nginx when nothing changed", func() {
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			first := getDeployment().Spec.Template
			Expect(recorder.Events).To(HaveLen(2))
			for len(recorder.Events) > 0 {
				<-recorder.Events
			}

			_, err = r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			Expect(getDeployment().Spec.Template).To(Equal(first))
			Expect(recorder.Events).To(BeEmpty())
		})

		It("should retry a failed restart on the next cycle", func() {
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(restartedAt()).To(BeEmpty())

			cat := getCatalogue()
			cat.Spec.Title = "Renamed catalogue"
			Expect(fakeClient.Update(ctx, cat)).To(Succeed())

			// another restart of the same Deployment is still running
			lockKey := utils.ObjectKey(namespace, deploymentName)
			r.restarts.Lock(lockKey)
			result, err := r.Reconcile(ctx, req)
			r.restarts.Unlock(lockKey)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(blockedRequeue))

			cat = getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseBlocked))
			Expect(GetCondition(cat.Status.Conditions, ConditionReady).Reason).To(Equal(ReasonRestartFailed))
			Expect(cat.Status.PendingRestart).To(BeTrue())
			Expect(getFiles().Data["web_config.json"]).To(ContainSubstring("Renamed catalogue"))
			Expect(restartedAt()).To(BeEmpty())

			result, err = r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(Equal(reconcile.Result{}))

			cat = getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseActive))
			Expect(cat.Status.PendingRestart).To(BeFalse())
			Expect(restartedAt()).ToNot(BeEmpty())
		})

		It("should apply the hostname override to the listed URLs", func() {
			cat := getCatalogue()
			cat.Spec.OverrideHostname = "apps.example.com"
			Expect(fakeClient.Update(ctx, cat)).To(Succeed())

			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			Expect(getFiles().Data["web_config.json"]).To(ContainSubstring("http://apps.example.com:3000/"))
			Expect(getCatalogue().Status.Items[0].URL).To(Equal("http://apps.example.com:3000/"))
		})
	})

	Context("with malformed links", func() {
		It("should block without writing any file", func() {
			setup(newCatalogue(func(cat *cataloguev1.Catalogue) {
				cat.Spec.Links = "- name: [unterminated"
			}), nginxDeployment())

			result, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(blockedRequeue))

			cat := getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseBlocked))
			Expect(GetCondition(cat.Status.Conditions, ConditionReady).Reason).To(Equal(ReasonInvalidConfig))
			Expect(recorder.Events).To(Receive(ContainSubstring("Warning " + ReasonInvalidConfig)))

			cm := &corev1.ConfigMap{}
			err = fakeClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: catalogueName + "-files"}, cm)
			Expect(client.IgnoreNotFound(err)).To(Succeed())
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with TLS material", func() {
		BeforeEach(func() {
			setup(
				newCatalogue(func(cat *cataloguev1.Catalogue) {
					cat.Spec.TLS = &cataloguev1.TLSSpec{
						SecretName: "catalogue-tls",
						IssuerRef:  &cataloguev1.IssuerRef{Name: "ca-issuer"},
					}
				}),
				nginxDeployment(),
				runningPod("catalogue-nginx-0", map[string]string{"app": deploymentName}),
				&corev1.Secret{
					ObjectMeta: metav1.ObjectMeta{Name: "catalogue-tls", Namespace: namespace},
					Type:       corev1.SecretTypeTLS,
					Data: map[string][]byte{
						"tls.crt": []byte("server-cert"),
						"tls.key": []byte("server-key"),
						"ca.crt":  []byte("ca-cert"),
					},
				},
			)
		})

		It("should serve TLS and register the CA in the workload", func() {
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			certsSecret := &corev1.Secret{}
			Expect(fakeClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: catalogueName + "-certs"}, certsSecret)).To(Succeed())
			Expect(certsSecret.Data).To(HaveKeyWithValue("etc_catalogue_certs_catalogue.cert.pem", []byte("server-cert")))
			Expect(certsSecret.Data).To(HaveKeyWithValue("etc_catalogue_certs_catalogue.key.pem", []byte("server-key")))
			Expect(certsSecret.Data).To(HaveKeyWithValue("etc_catalogue_certs_ca.cert", []byte("ca-cert")))

			Expect(getFiles().Data["etc_nginx_nginx.conf"]).To(ContainSubstring("listen               443 ssl;"))
			Expect(executor.pods).To(Equal([]string{"catalogue-nginx-0"}))
			Expect(executor.input).To(Equal([]string{"ca-cert"}))

			cat := getCatalogue()
			Expect(cat.Status.Phase).To(Equal(cataloguev1.PhaseActive))
			Expect(cat.Status.URL).To(Equal("https://catalogue-nginx.default.svc.cluster.local:443"))
			Expect(cat.Status.CertificateHash).ToNot(BeEmpty())
		})

		It("should register the CA in pods started by a rollout", func() {
			labels := map[string]string{"app": deploymentName}
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(executor.pods).To(Equal([]string{"catalogue-nginx-0"}))

			// the restart after switching to TLS replaced the pod
			Expect(fakeClient.Delete(ctx, runningPod("catalogue-nginx-0", labels))).To(Succeed())
			Expect(fakeClient.Create(ctx, runningPod("catalogue-nginx-1", labels))).To(Succeed())

			_, err = r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(getCatalogue().Status.Phase).To(Equal(cataloguev1.PhaseActive))
			Expect(executor.pods).To(Equal([]string{"catalogue-nginx-0", "catalogue-nginx-1"}))
			Expect(executor.input).To(Equal([]string{"ca-cert", "ca-cert"}))

			pod := &corev1.Pod{}
			Expect(fakeClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: "catalogue-nginx-1"}, pod)).To(Succeed())
			Expect(pod.Annotations).To(HaveKey(workload.CAHashAnnotation))

			_, err = r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(executor.pods).To(HaveLen(2))
		})

		It("should request a server certificate from cert-manager", func() {
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			cert := &cmv1.Certificate{}
			Expect(fakeClient.Get(ctx, req.NamespacedName, cert)).To(Succeed())
			Expect(cert.Spec.SecretName).To(Equal("catalogue-tls"))
			Expect(cert.Spec.DNSNames).To(ContainElement("catalogue-nginx.default.svc.cluster.local"))
			Expect(cert.Spec.IssuerRef.Name).To(Equal("ca-issuer"))
			Expect(cert.Spec.IssuerRef.Kind).To(Equal(cmv1.IssuerKind))
			Expect(metav1.IsControlledBy(cert, getCatalogue())).To(BeTrue())
		})
	})

	Context("with an ingress", func() {
		BeforeEach(func() {
			setup(
				newCatalogue(func(cat *cataloguev1.Catalogue) {
					cat.Spec.Ingress = &cataloguev1.IngressSpec{Host: "catalogue.example.com"}
				}),
				nginxDeployment(),
			)
		})

		It("should create the ingress and publish its URL once it is ready", func() {
			_, err := r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			ing := &networkingv1.Ingress{}
			Expect(fakeClient.Get(ctx, req.NamespacedName, ing)).To(Succeed())
			Expect(ing.Spec.Rules[0].Host).To(Equal("catalogue.example.com"))
			Expect(ing.Spec.Rules[0].HTTP.Paths[0].Backend.Service.Name).To(Equal(deploymentName))
			Expect(ing.Annotations).ToNot(HaveKey(BackendProtocolAnnotation))
			Expect(getCatalogue().Status.IngressURL).To(BeEmpty())

			ing.Status.LoadBalancer.Ingress = []networkingv1.IngressLoadBalancerIngress{{IP: "10.0.0.1"}}
			Expect(fakeClient.Status().Update(ctx, ing)).To(Succeed())

			_, err = r.Reconcile(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			cat := getCatalogue()
			Expect(cat.Status.IngressURL).To(Equal("http://catalogue.example.com/"))
			Expect(cat.Status.URL).To(Equal("http://catalogue.example.com/"))
		})
	})
})
