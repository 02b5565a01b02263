package controller

import (
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/klog/v2"
)

// BackendProtocolAnnotation tells ingress-nginx how to talk to the catalogue Service.
const BackendProtocolAnnotation = "nginx.ingress.kubernetes.io/backend-protocol"

// setBackendProtocol adds the "nginx.ingress.kubernetes.io/backend-protocol: HTTPS"
// annotation when the workload serves TLS, and removes it otherwise.
func setBackendProtocol(ing *networkingv1.Ingress, tls bool) {
	if tls {
		if ing.Annotations == nil {
			ing.Annotations = make(map[string]string)
		}
		if ing.Annotations[BackendProtocolAnnotation] != "HTTPS" {
			klog.Infof("adding HTTPS backend protocol to ingress %s/%s", ing.Namespace, ing.Name)
		}
		ing.Annotations[BackendProtocolAnnotation] = "HTTPS"
		return
	}

	if _, ok := ing.Annotations[BackendProtocolAnnotation]; ok {
		klog.Infof("removing HTTPS backend protocol from ingress %s/%s", ing.Namespace, ing.Name)
		delete(ing.Annotations, BackendProtocolAnnotation)
	}
}
