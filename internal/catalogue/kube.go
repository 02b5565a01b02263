package catalogue

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// RelationLabel marks a ConfigMap as a data bag for the catalogue named by its value.
	RelationLabel = "catalogue.uri-tech.github.io/catalogue"
	// AppLabel names the application owning a data bag, and selects its pods.
	AppLabel = "app.kubernetes.io/name"
)

// KubeRelationSource reads relations from labelled ConfigMaps in one namespace.
// A relation's units are the Running pods of the owning application.
type KubeRelationSource struct {
	Client    client.Reader
	Namespace string
	Catalogue string
}

// Relations lists the relations of the catalogue, ordered by data bag name.
func (s *KubeRelationSource) Relations(ctx context.Context) ([]Relation, error) {
	bags := &corev1.ConfigMapList{}
	if err := s.Client.List(ctx, bags,
		client.InNamespace(s.Namespace),
		client.MatchingLabels{RelationLabel: s.Catalogue},
	); err != nil {
		return nil, fmt.Errorf("failed to list catalogue data bags: %w", err)
	}

	sort.Slice(bags.Items, func(i, j int) bool {
		return bags.Items[i].Name < bags.Items[j].Name
	})

	relations := make([]Relation, 0, len(bags.Items))
	for _, cm := range bags.Items {
		rel := Relation{
			App:  cm.Labels[AppLabel],
			Data: cm.Data,
		}
		if rel.App != "" {
			units, err := s.units(ctx, rel.App)
			if err != nil {
				return nil, err
			}
			rel.Units = units
		}
		relations = append(relations, rel)
	}

	return relations, nil
}

// Items is ItemsFromRelations over the current relations.
func (s *KubeRelationSource) Items(ctx context.Context) ([]Item, error) {
	relations, err := s.Relations(ctx)
	if err != nil {
		return nil, err
	}
	return ItemsFromRelations(relations), nil
}

func (s *KubeRelationSource) units(ctx context.Context, app string) ([]string, error) {
	pods := &corev1.PodList{}
	if err := s.Client.List(ctx, pods,
		client.InNamespace(s.Namespace),
		client.MatchingLabels{AppLabel: app},
	); err != nil {
		return nil, fmt.Errorf("failed to list pods of %s: %w", app, err)
	}

	units := []string{}
	for _, pod := range pods.Items {
		if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
			continue
		}
		units = append(units, pod.Name)
	}
	sort.Strings(units)
	return units, nil
}

// DataBagName is the name of the ConfigMap an application publishes its item in.
func DataBagName(catalogueName, app string) string {
	return catalogueName + "-" + app
}

// PublishItem writes item as the data bag of app for the given catalogue. Only the
// leader publishes; other callers return without touching the cluster.
func PublishItem(ctx context.Context, c client.Client, namespace, catalogueName, app string, item Item, isLeader bool) error {
	if !isLeader {
		return nil
	}

	key := client.ObjectKey{Namespace: namespace, Name: DataBagName(catalogueName, app)}
	cm := &corev1.ConfigMap{}
	err := c.Get(ctx, key, cm)
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get data bag %s: %w", key, err)
	}

	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      key.Name,
				Namespace: key.Namespace,
				Labels: map[string]string{
					RelationLabel: catalogueName,
					AppLabel:      app,
				},
			},
			Data: item.DataBag(),
		}
		logger.Infof("publishing catalogue item %q for %s", item.Name, app)
		return c.Create(ctx, cm)
	}

	if cm.Labels == nil {
		cm.Labels = map[string]string{}
	}
	cm.Labels[RelationLabel] = catalogueName
	cm.Labels[AppLabel] = app
	cm.Data = item.DataBag()
	logger.Infof("updating catalogue item %q for %s", item.Name, app)
	return c.Update(ctx, cm)
}
