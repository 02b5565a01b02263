package workload

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

var logger = loggerpkg.GetNamedLogger("workload")

// ManagedByLabel marks objects written by the operator.
const ManagedByLabel = "app.kubernetes.io/managed-by"

// ManagedBy is the value of ManagedByLabel.
const ManagedBy = "catalogue-operator"

// KubeFS stores workload files as keys of a ConfigMap, or of a Secret for paths
// under one of SecretDirs. The nginx Deployment mounts both objects.
// Client must read from the API server directly so that writes are visible to
// the following reads.
type KubeFS struct {
	Client        client.Client
	Namespace     string
	Deployment    string
	ConfigMapName string
	SecretName    string
	SecretDirs    []string
	OwnerRefs     []metav1.OwnerReference
}

// PathKey maps an absolute path to an object key: "/web/config.json" becomes "web_config.json".
func PathKey(p string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path.Clean(p), "/"), "/", "_")
}

// CanConnect reports whether the nginx Deployment exists.
func (f *KubeFS) CanConnect(ctx context.Context) bool {
	deploy := &appsv1.Deployment{}
	if err := f.Client.Get(ctx, client.ObjectKey{Namespace: f.Namespace, Name: f.Deployment}, deploy); err != nil {
		logger.Debugf("workload %s/%s not reachable: %v", f.Namespace, f.Deployment, err)
		return false
	}
	return true
}

func (f *KubeFS) secretPath(p string) bool {
	clean := path.Clean(p)
	for _, dir := range f.SecretDirs {
		if strings.HasPrefix(clean, path.Clean(dir)+"/") {
			return true
		}
	}
	return false
}

// Exists reports whether p has content.
func (f *KubeFS) Exists(ctx context.Context, p string) (bool, error) {
	_, err := f.Read(ctx, p)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the content of p, or ErrNotFound.
func (f *KubeFS) Read(ctx context.Context, p string) ([]byte, error) {
	key := PathKey(p)

	if f.secretPath(p) {
		secret, err := f.getSecret(ctx)
		if err != nil {
			return nil, err
		}
		if secret == nil {
			return nil, ErrNotFound
		}
		data, ok := secret.Data[key]
		if !ok {
			return nil, ErrNotFound
		}
		return data, nil
	}

	cm, err := f.getConfigMap(ctx)
	if err != nil {
		return nil, err
	}
	if cm == nil {
		return nil, ErrNotFound
	}
	if data, ok := cm.Data[key]; ok {
		return []byte(data), nil
	}
	if data, ok := cm.BinaryData[key]; ok {
		return data, nil
	}
	return nil, ErrNotFound
}

// Write stores data at p. When the backing object does not exist yet it is
// created if makeDirs is set, otherwise Write fails.
func (f *KubeFS) Write(ctx context.Context, p string, data []byte, makeDirs bool) error {
	key := PathKey(p)

	if f.secretPath(p) {
		secret, err := f.getSecret(ctx)
		if err != nil {
			return err
		}
		if secret == nil {
			if !makeDirs {
				return fmt.Errorf("cannot write %s: secret %s/%s does not exist", p, f.Namespace, f.SecretName)
			}
			secret = &corev1.Secret{
				ObjectMeta: f.objectMeta(f.SecretName),
				Type:       corev1.SecretTypeOpaque,
				Data:       map[string][]byte{key: data},
			}
			logger.Debugf("creating secret %s for %s", f.SecretName, p)
			return f.Client.Create(ctx, secret)
		}
		if existing, ok := secret.Data[key]; ok && bytes.Equal(existing, data) {
			return nil
		}
		if secret.Data == nil {
			secret.Data = map[string][]byte{}
		}
		secret.Data[key] = data
		return f.Client.Update(ctx, secret)
	}

	cm, err := f.getConfigMap(ctx)
	if err != nil {
		return err
	}
	if cm == nil {
		if !makeDirs {
			return fmt.Errorf("cannot write %s: configmap %s/%s does not exist", p, f.Namespace, f.ConfigMapName)
		}
		cm = &corev1.ConfigMap{
			ObjectMeta: f.objectMeta(f.ConfigMapName),
			Data:       map[string]string{key: string(data)},
		}
		logger.Debugf("creating configmap %s for %s", f.ConfigMapName, p)
		return f.Client.Create(ctx, cm)
	}
	if existing, ok := cm.Data[key]; ok && existing == string(data) {
		return nil
	}
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[key] = string(data)
	delete(cm.BinaryData, key)
	return f.Client.Update(ctx, cm)
}

// Remove deletes p. Removing a missing path is not an error.
func (f *KubeFS) Remove(ctx context.Context, p string) error {
	key := PathKey(p)

	if f.secretPath(p) {
		secret, err := f.getSecret(ctx)
		if err != nil || secret == nil {
			return err
		}
		if _, ok := secret.Data[key]; !ok {
			return nil
		}
		delete(secret.Data, key)
		return f.Client.Update(ctx, secret)
	}

	cm, err := f.getConfigMap(ctx)
	if err != nil || cm == nil {
		return err
	}
	_, inData := cm.Data[key]
	_, inBinary := cm.BinaryData[key]
	if !inData && !inBinary {
		return nil
	}
	delete(cm.Data, key)
	delete(cm.BinaryData, key)
	return f.Client.Update(ctx, cm)
}

func (f *KubeFS) objectMeta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:            name,
		Namespace:       f.Namespace,
		Labels:          map[string]string{ManagedByLabel: ManagedBy},
		OwnerReferences: f.OwnerRefs,
	}
}

// getSecret returns nil without error when the Secret does not exist.
func (f *KubeFS) getSecret(ctx context.Context) (*corev1.Secret, error) {
	secret := &corev1.Secret{}
	err := f.Client.Get(ctx, client.ObjectKey{Namespace: f.Namespace, Name: f.SecretName}, secret)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", f.Namespace, f.SecretName, err)
	}
	return secret, nil
}

// getConfigMap returns nil without error when the ConfigMap does not exist.
func (f *KubeFS) getConfigMap(ctx context.Context) (*corev1.ConfigMap, error) {
	cm := &corev1.ConfigMap{}
	err := f.Client.Get(ctx, client.ObjectKey{Namespace: f.Namespace, Name: f.ConfigMapName}, cm)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get configmap %s/%s: %w", f.Namespace, f.ConfigMapName, err)
	}
	return cm, nil
}
