package controller

import (
	"github.com/Masterminds/semver/v3"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/internal/reconciler"
)

// observation is what the controller sees before a cycle, to be compared with
// what the last cycle recorded in the status.
type observation struct {
	OperatorVersion string
	CertificateHash string
	IngressURL      string
}

// deriveTrigger names the event that caused this cycle. Earlier rules win: a
// workload that was never reconciled comes first, a plain relation change last.
func deriveTrigger(cat *cataloguev1.Catalogue, obs observation) reconciler.Trigger {
	status := cat.Status

	if status.Phase == "" || status.Phase == cataloguev1.PhaseWaiting {
		return reconciler.WorkloadReady{}
	}
	if isUpgrade(status.OperatorVersion, obs.OperatorVersion) {
		return reconciler.UpgradeRequested{From: status.OperatorVersion, To: obs.OperatorVersion}
	}
	if obs.CertificateHash != status.CertificateHash {
		return reconciler.CertAvailable{}
	}
	if obs.IngressURL != status.IngressURL {
		if obs.IngressURL == "" {
			return reconciler.IngressRevoked{}
		}
		return reconciler.IngressReady{URL: obs.IngressURL}
	}
	if cat.Generation != status.ObservedGeneration {
		return reconciler.ConfigChanged{}
	}
	return reconciler.RelationChanged{}
}

// isUpgrade reports whether running is a newer version than recorded. An
// unparsable recorded version counts as an upgrade when it differs.
func isUpgrade(recorded, running string) bool {
	if recorded == "" || recorded == running {
		return false
	}
	to, err := semver.NewVersion(running)
	if err != nil {
		return false
	}
	from, err := semver.NewVersion(recorded)
	if err != nil {
		return true
	}
	return to.GreaterThan(from)
}
