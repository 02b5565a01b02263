package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/internal/reconciler"
)

func reconciledCatalogue() *cataloguev1.Catalogue {
	cat := &cataloguev1.Catalogue{}
	cat.Generation = 3
	cat.Status = cataloguev1.CatalogueStatus{
		Phase:              cataloguev1.PhaseActive,
		OperatorVersion:    "1.2.0",
		CertificateHash:    "abc",
		IngressURL:         "http://catalogue.example.com/",
		ObservedGeneration: 3,
	}
	return cat
}

func TestDeriveTrigger(t *testing.T) {
	steady := observation{OperatorVersion: "1.2.0", CertificateHash: "abc", IngressURL: "http://catalogue.example.com/"}

	tests := []struct {
		name   string
		mutate func(*cataloguev1.Catalogue, *observation)
		want   reconciler.Trigger
	}{
		{
			name:   "nothing changed",
			mutate: func(*cataloguev1.Catalogue, *observation) {},
			want:   reconciler.RelationChanged{},
		},
		{
			name:   "never reconciled",
			mutate: func(c *cataloguev1.Catalogue, _ *observation) { c.Status.Phase = "" },
			want:   reconciler.WorkloadReady{},
		},
		{
			name:   "workload was unreachable",
			mutate: func(c *cataloguev1.Catalogue, o *observation) { c.Status.Phase = cataloguev1.PhaseWaiting; o.OperatorVersion = "2.0.0" },
			want:   reconciler.WorkloadReady{},
		},
		{
			name:   "newer operator",
			mutate: func(_ *cataloguev1.Catalogue, o *observation) { o.OperatorVersion = "1.3.0"; o.CertificateHash = "def" },
			want:   reconciler.UpgradeRequested{From: "1.2.0", To: "1.3.0"},
		},
		{
			name:   "older operator",
			mutate: func(_ *cataloguev1.Catalogue, o *observation) { o.OperatorVersion = "1.1.0" },
			want:   reconciler.RelationChanged{},
		},
		{
			name:   "certificate rotated",
			mutate: func(_ *cataloguev1.Catalogue, o *observation) { o.CertificateHash = "def" },
			want:   reconciler.CertAvailable{},
		},
		{
			name:   "ingress revoked",
			mutate: func(_ *cataloguev1.Catalogue, o *observation) { o.IngressURL = "" },
			want:   reconciler.IngressRevoked{},
		},
		{
			name: "ingress ready",
			mutate: func(c *cataloguev1.Catalogue, o *observation) {
				c.Status.IngressURL = ""
			},
			want: reconciler.IngressReady{URL: "http://catalogue.example.com/"},
		},
		{
			name:   "spec changed",
			mutate: func(c *cataloguev1.Catalogue, _ *observation) { c.Generation = 4 },
			want:   reconciler.ConfigChanged{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := reconciledCatalogue()
			obs := steady
			tt.mutate(cat, &obs)
			assert.Equal(t, tt.want, deriveTrigger(cat, obs))
		})
	}
}

func TestIsUpgrade(t *testing.T) {
	assert.False(t, isUpgrade("", "1.0.0"))
	assert.False(t, isUpgrade("1.0.0", "1.0.0"))
	assert.True(t, isUpgrade("1.0.0", "1.0.1"))
	assert.False(t, isUpgrade("2.0.0", "1.9.9"))
	assert.True(t, isUpgrade("not-a-version", "1.0.0"))
	assert.False(t, isUpgrade("1.0.0", "not-a-version"))
}
