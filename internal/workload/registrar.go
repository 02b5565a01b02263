package workload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/uri-tech/catalogue-operator/internal/certs"
)

const (
	// TrustedCAPath is where the CA certificate is installed for the trust store.
	TrustedCAPath = "/usr/local/share/ca-certificates/catalogue.crt"
	// CAHashAnnotation marks a pod with the digest of the CA registered in it.
	CAHashAnnotation = "catalogue.uri-tech.github.io/ca-hash"
)

// Executor runs a command in a container.
type Executor interface {
	Exec(ctx context.Context, namespace, pod, container string, command []string, stdin io.Reader) (stdout, stderr string, err error)
}

// PodExecRegistrar installs the CA certificate in the running workload pods and
// runs the trust store command there. Pods that already hold the CA are skipped,
// so pods replaced by a rollout are registered on the next call.
type PodExecRegistrar struct {
	Client     client.Client
	Executor   Executor
	Namespace  string
	Deployment string
	Container  string
	Command    []string
}

// Register installs ca in the trust store of each running pod that does not
// hold it yet. The first failure is returned.
func (r *PodExecRegistrar) Register(ctx context.Context, ca []byte) error {
	pods, err := r.runningPods(ctx)
	if err != nil {
		return err
	}
	if len(pods) == 0 {
		return fmt.Errorf("cannot register the CA certificate: %w", certs.ErrNoInstances)
	}

	sum := sha256.Sum256(ca)
	digest := hex.EncodeToString(sum[:])
	script := fmt.Sprintf("cat > %s && %s", TrustedCAPath, strings.Join(r.Command, " "))
	for i := range pods {
		pod := &pods[i]
		if pod.Annotations[CAHashAnnotation] == digest {
			continue
		}
		_, stderr, err := r.Executor.Exec(ctx, r.Namespace, pod.Name, r.Container, []string{"/bin/sh", "-c", script}, bytes.NewReader(ca))
		if err != nil {
			return fmt.Errorf("trust store update in pod %s failed: %w: %s", pod.Name, err, strings.TrimSpace(stderr))
		}

		patch := client.MergeFrom(pod.DeepCopy())
		if pod.Annotations == nil {
			pod.Annotations = map[string]string{}
		}
		pod.Annotations[CAHashAnnotation] = digest
		if err := r.Client.Patch(ctx, pod, patch); err != nil {
			return fmt.Errorf("failed to mark pod %s as registered: %w", pod.Name, err)
		}
		logger.Infof("registered CA certificate in pod %s", pod.Name)
	}
	return nil
}

func (r *PodExecRegistrar) runningPods(ctx context.Context) ([]corev1.Pod, error) {
	deploy := &appsv1.Deployment{}
	if err := r.Client.Get(ctx, client.ObjectKey{Namespace: r.Namespace, Name: r.Deployment}, deploy); err != nil {
		return nil, fmt.Errorf("failed to get deployment %s/%s: %w", r.Namespace, r.Deployment, err)
	}
	if deploy.Spec.Selector == nil || len(deploy.Spec.Selector.MatchLabels) == 0 {
		return nil, fmt.Errorf("deployment %s/%s has no label selector", r.Namespace, r.Deployment)
	}

	pods := &corev1.PodList{}
	if err := r.Client.List(ctx, pods,
		client.InNamespace(r.Namespace),
		client.MatchingLabels(deploy.Spec.Selector.MatchLabels),
	); err != nil {
		return nil, fmt.Errorf("failed to list workload pods: %w", err)
	}

	running := []corev1.Pod{}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning && pod.DeletionTimestamp == nil {
			running = append(running, pod)
		}
	}
	return running, nil
}

// SPDYExecutor executes commands through the pods/exec subresource.
type SPDYExecutor struct {
	Config    *rest.Config
	Clientset kubernetes.Interface
}

// Exec implements Executor.
func (e *SPDYExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string, stdin io.Reader) (string, string, error) {
	req := e.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.Config, "POST", req.URL())
	if err != nil {
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return stdout.String(), stderr.String(), err
}
