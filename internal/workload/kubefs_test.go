package workload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakec "sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func generateDeployment(name, namespace string) *appsv1.Deployment {
	labels := map[string]string{"app": name}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
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

func newKubeFS(c client.Client) *KubeFS {
	return &KubeFS{
		Client:        c,
		Namespace:     "default",
		Deployment:    "catalogue",
		ConfigMapName: "catalogue-files",
		SecretName:    "catalogue-certs",
		SecretDirs:    []string{"/etc/catalogue/certs"},
	}
}

func TestPathKey(t *testing.T) {
	assert.Equal(t, "web_config.json", PathKey("/web/config.json"))
	assert.Equal(t, "etc_nginx_nginx.conf", PathKey("/etc/nginx/nginx.conf"))
	assert.Equal(t, "etc_catalogue_certs_ca.cert", PathKey("/etc/catalogue/certs/../certs/ca.cert"))
}

func TestKubeFSCanConnect(t *testing.T) {
	ctx := context.TODO()

	fs := newKubeFS(fakec.NewClientBuilder().WithScheme(scheme.Scheme).Build())
	assert.False(t, fs.CanConnect(ctx))

	fs = newKubeFS(fakec.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(generateDeployment("catalogue", "default")).Build())
	assert.True(t, fs.CanConnect(ctx))
}

func TestKubeFSReadWriteRemove(t *testing.T) {
	ctx := context.TODO()
	fakeClient := fakec.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	fs := newKubeFS(fakeClient)

	_, err := fs.Read(ctx, "/web/config.json")
	assert.ErrorIs(t, err, ErrNotFound)

	// without makeDirs the backing object must exist
	assert.Error(t, fs.Write(ctx, "/web/config.json", []byte("{}"), false))

	require.NoError(t, fs.Write(ctx, "/web/config.json", []byte(`{"title":"T"}`), true))
	require.NoError(t, fs.Write(ctx, "/etc/nginx/nginx.conf", []byte("events {}"), false))

	data, err := fs.Read(ctx, "/web/config.json")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"T"}`, string(data))

	cm := &corev1.ConfigMap{}
	require.NoError(t, fakeClient.Get(ctx, client.ObjectKey{Namespace: "default", Name: "catalogue-files"}, cm))
	assert.Equal(t, "events {}", cm.Data["etc_nginx_nginx.conf"])
	assert.Equal(t, ManagedBy, cm.Labels[ManagedByLabel])

	ok, err := fs.Exists(ctx, "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Remove(ctx, "/etc/nginx/nginx.conf"))
	require.NoError(t, fs.Remove(ctx, "/etc/nginx/nginx.conf"))
	ok, err = fs.Exists(ctx, "/etc/nginx/nginx.conf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKubeFSCertificatesGoToSecret(t *testing.T) {
	ctx := context.TODO()
	fakeClient := fakec.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	fs := newKubeFS(fakeClient)

	require.NoError(t, fs.Write(ctx, "/etc/catalogue/certs/catalogue.key.pem", []byte("key"), true))

	secret := &corev1.Secret{}
	require.NoError(t, fakeClient.Get(ctx, client.ObjectKey{Namespace: "default", Name: "catalogue-certs"}, secret))
	assert.Equal(t, []byte("key"), secret.Data["etc_catalogue_certs_catalogue.key.pem"])

	cm := &corev1.ConfigMap{}
	assert.Error(t, fakeClient.Get(ctx, client.ObjectKey{Namespace: "default", Name: "catalogue-files"}, cm))

	data, err := fs.Read(ctx, "/etc/catalogue/certs/catalogue.key.pem")
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), data)

	require.NoError(t, fs.Remove(ctx, "/etc/catalogue/certs/catalogue.key.pem"))
	_, err = fs.Read(ctx, "/etc/catalogue/certs/catalogue.key.pem")
	assert.ErrorIs(t, err, ErrNotFound)

	// removing from a secret that never existed is fine
	fs.SecretName = "missing"
	assert.NoError(t, fs.Remove(ctx, "/etc/catalogue/certs/ca.cert"))
}
