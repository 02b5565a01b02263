package workload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/uri-tech/catalogue-operator/internal/render"
	"github.com/uri-tech/catalogue-operator/utils"
)

const (
	// LayerAnnotation holds the installed layer, as JSON, on the Deployment.
	LayerAnnotation = "catalogue.uri-tech.github.io/layer"
	// RestartedAtAnnotation is bumped on the pod template to restart the workload.
	RestartedAtAnnotation = "catalogue.uri-tech.github.io/restartedAt"
)

// DeploymentSupervisor supervises nginx through its Deployment. The installed
// layer is kept as an annotation and its service command is projected onto the
// container; a restart rolls the pods by changing a pod template annotation.
// A restart right after an install that changed the container command is a
// no-op, as that change already rolls the pods.
type DeploymentSupervisor struct {
	Client    client.Client
	Namespace string
	Name      string
	Container string
	Locks     *utils.NamedMutex
	Now       func() time.Time

	rolled bool
}

func (s *DeploymentSupervisor) key() string {
	return utils.ObjectKey(s.Namespace, s.Name)
}

func (s *DeploymentSupervisor) get(ctx context.Context) (*appsv1.Deployment, error) {
	deploy := &appsv1.Deployment{}
	if err := s.Client.Get(ctx, client.ObjectKey{Namespace: s.Namespace, Name: s.Name}, deploy); err != nil {
		return nil, fmt.Errorf("failed to get deployment %s: %w", s.key(), err)
	}
	return deploy, nil
}

// Layer returns the installed layer. A Deployment without the annotation has an empty layer.
func (s *DeploymentSupervisor) Layer(ctx context.Context) (render.Layer, error) {
	deploy, err := s.get(ctx)
	if err != nil {
		return render.Layer{}, err
	}

	raw, ok := deploy.Annotations[LayerAnnotation]
	if !ok {
		return render.Layer{}, nil
	}
	layer := render.Layer{}
	if err := json.Unmarshal([]byte(raw), &layer); err != nil {
		return render.Layer{}, fmt.Errorf("malformed %s annotation on %s: %w", LayerAnnotation, s.key(), err)
	}
	return layer, nil
}

// InstallLayer records layer on the Deployment and sets the container command
// from the layer's service of the same name.
func (s *DeploymentSupervisor) InstallLayer(ctx context.Context, layer render.Layer) error {
	raw, err := json.Marshal(layer)
	if err != nil {
		return err
	}

	deploy, err := s.get(ctx)
	if err != nil {
		return err
	}

	if deploy.Annotations == nil {
		deploy.Annotations = map[string]string{}
	}
	deploy.Annotations[LayerAnnotation] = string(raw)

	templateChanged := false
	if svc, ok := layer.Services[render.ServiceName]; ok {
		found := false
		for i := range deploy.Spec.Template.Spec.Containers {
			c := &deploy.Spec.Template.Spec.Containers[i]
			if c.Name != s.Container {
				continue
			}
			command := []string{"/bin/sh", "-c", "exec " + svc.Command}
			if !equality.Semantic.DeepEqual(c.Command, command) || len(c.Args) > 0 {
				templateChanged = true
			}
			c.Command = command
			c.Args = nil
			found = true
		}
		if !found {
			return fmt.Errorf("container %q not found in deployment %s", s.Container, s.key())
		}
	}

	logger.Infof("installing layer on %s", s.key())
	if err := s.Client.Update(ctx, deploy); err != nil {
		return err
	}
	s.rolled = s.rolled || templateChanged
	return nil
}

// Restart rolls the Deployment's pods. Only one restart per Deployment runs at a time.
func (s *DeploymentSupervisor) Restart(ctx context.Context, service string) error {
	key := s.key()
	if !s.Locks.TryLock(key) {
		msg := fmt.Sprintf("restart of %s is already in progress", key)
		logger.Error(msg)
		return errors.New(msg)
	}
	defer s.Locks.Unlock(key)

	if s.rolled {
		s.rolled = false
		logger.Infof("%s of %s is already rolling out with the new layer", service, key)
		return nil
	}

	deploy, err := s.get(ctx)
	if err != nil {
		return err
	}

	if deploy.Spec.Template.Annotations == nil {
		deploy.Spec.Template.Annotations = map[string]string{}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	deploy.Spec.Template.Annotations[RestartedAtAnnotation] = now().UTC().Format(time.RFC3339Nano)

	if err := s.Client.Update(ctx, deploy); err != nil {
		logger.Errorf("unable to restart %s of %s: %v", service, key, err)
		return err
	}
	logger.Infof("restarted %s of %s", service, key)
	return nil
}
