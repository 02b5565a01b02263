/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// api/v1/catalogue_types.go

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CataloguePhase is the outcome of the last reconciliation cycle.
// +kubebuilder:validation:Enum=Active;Blocked;Waiting
type CataloguePhase string

const (
	PhaseActive  CataloguePhase = "Active"
	PhaseBlocked CataloguePhase = "Blocked"
	PhaseWaiting CataloguePhase = "Waiting"
)

// CatalogueSpec defines the desired state of Catalogue
type CatalogueSpec struct {
	// Title shown at the top of the catalogue page.
	// +optional
	Title string `json:"title,omitempty"`

	// +optional
	Tagline string `json:"tagline,omitempty"`

	// +optional
	Description string `json:"description,omitempty"`

	// Links is a YAML or JSON list of {name, url, icon} entries shown above the applications.
	// +optional
	Links string `json:"links,omitempty"`

	// OverrideHostname replaces the host of every application URL, keeping scheme, port and path.
	// +optional
	OverrideHostname string `json:"overrideHostname,omitempty"`

	// Workload points at the nginx workload serving the catalogue.
	Workload WorkloadRef `json:"workload"`

	// +optional
	TLS *TLSSpec `json:"tls,omitempty"`

	// +optional
	Ingress *IngressSpec `json:"ingress,omitempty"`
}

// WorkloadRef names the Deployment, container and Service of the nginx workload.
type WorkloadRef struct {
	// +kubebuilder:validation:MinLength=1
	Deployment string `json:"deployment"`

	// Container defaults to the operator's WORKLOAD_CONTAINER setting.
	// +optional
	Container string `json:"container,omitempty"`

	// Service defaults to the Deployment name.
	// +optional
	Service string `json:"service,omitempty"`
}

// TLSSpec configures the server certificate.
type TLSSpec struct {
	// SecretName is the kubernetes.io/tls Secret holding tls.crt, tls.key and ca.crt.
	// +kubebuilder:validation:MinLength=1
	SecretName string `json:"secretName"`

	// IssuerRef, when set, makes the operator request the certificate from cert-manager.
	// +optional
	IssuerRef *IssuerRef `json:"issuerRef,omitempty"`

	// +optional
	ExtraDNSNames []string `json:"extraDNSNames,omitempty"`
}

// IssuerRef references a cert-manager Issuer or ClusterIssuer.
type IssuerRef struct {
	Name string `json:"name"`
	// +optional
	Kind string `json:"kind,omitempty"`
	// +optional
	Group string `json:"group,omitempty"`
}

// IngressSpec requests an Ingress in front of the workload Service.
type IngressSpec struct {
	// +kubebuilder:validation:MinLength=1
	Host string `json:"host"`

	// +optional
	ClassName *string `json:"className,omitempty"`
}

// CatalogueItemStatus is a listed application.
type CatalogueItemStatus struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CatalogueStatus defines the observed state of Catalogue
type CatalogueStatus struct {
	// Conditions are the conditions for this resource.
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// +optional
	Phase CataloguePhase `json:"phase,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// URL is where the catalogue is reachable: the ingress URL when ready, the in-cluster URL otherwise.
	// +optional
	URL string `json:"url,omitempty"`

	// +optional
	IngressURL string `json:"ingressURL,omitempty"`

	// CertificateHash identifies the TLS material the last cycle saw.
	// +optional
	CertificateHash string `json:"certificateHash,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// PendingRestart is set while nginx runs with older files than the workload holds.
	// +optional
	PendingRestart bool `json:"pendingRestart,omitempty"`

	// OperatorVersion is the operator version that last reconciled this resource.
	// +optional
	OperatorVersion string `json:"operatorVersion,omitempty"`

	// +optional
	Items []CatalogueItemStatus `json:"items,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
//+kubebuilder:printcolumn:name="URL",type=string,JSONPath=`.status.url`

// Catalogue is the Schema for the catalogues API
type Catalogue struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   CatalogueSpec   `json:"spec,omitempty"`
	Status CatalogueStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// CatalogueList contains a list of Catalogue
type CatalogueList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Catalogue `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Catalogue{}, &CatalogueList{})
}

// ServiceName returns the workload Service, defaulting to the Deployment name.
func (in *Catalogue) ServiceName() string {
	if in.Spec.Workload.Service != "" {
		return in.Spec.Workload.Service
	}
	return in.Spec.Workload.Deployment
}

// TLSSecretName returns the TLS Secret name, or "" when TLS is not configured.
func (in *Catalogue) TLSSecretName() string {
	if in.Spec.TLS == nil {
		return ""
	}
	return in.Spec.TLS.SecretName
}
