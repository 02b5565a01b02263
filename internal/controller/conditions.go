package controller

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/uri-tech/catalogue-operator/internal/reconciler"
)

// ConditionReady is the only condition a Catalogue reports.
const ConditionReady = "Ready"

// Reasons of the Ready condition
const (
	ReasonActive        = "Active"
	ReasonWaiting       = "WorkloadUnreachable"
	ReasonInvalidConfig = "InvalidConfig"
	ReasonCertificate   = "CertificateError"
	ReasonWriteFailed   = "WriteFailed"
	ReasonLayerFailed   = "LayerInstallFailed"
	ReasonRestartFailed = "RestartFailed"
	ReasonBlocked       = "Blocked"
)

// SetCondition updates a condition in the conditions slice. The transition time
// only moves when status or reason change.
func SetCondition(conditions *[]metav1.Condition, conditionType string, status metav1.ConditionStatus, reason, message string) {
	now := metav1.NewTime(time.Now())

	for i, condition := range *conditions {
		if condition.Type == conditionType {
			if condition.Status != status || condition.Reason != reason {
				(*conditions)[i].Status = status
				(*conditions)[i].Reason = reason
				(*conditions)[i].Message = message
				(*conditions)[i].LastTransitionTime = now
			} else if condition.Message != message {
				(*conditions)[i].Message = message
			}
			return
		}
	}

	*conditions = append(*conditions, metav1.Condition{
		Type:               conditionType,
		Status:             status,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns the condition with the given type, or nil if not found
func GetCondition(conditions []metav1.Condition, conditionType string) *metav1.Condition {
	for i, condition := range conditions {
		if condition.Type == conditionType {
			return &conditions[i]
		}
	}
	return nil
}

// readyCondition maps a cycle result onto the Ready condition.
func readyCondition(res reconciler.Result) (metav1.ConditionStatus, string, string) {
	switch res.State {
	case reconciler.StateActive:
		return metav1.ConditionTrue, ReasonActive, "Catalogue is being served"
	case reconciler.StateWaiting:
		return metav1.ConditionFalse, ReasonWaiting, res.Message
	}
	return metav1.ConditionFalse, blockedReason(res.Err), res.Message
}
