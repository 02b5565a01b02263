package reconciler

// Trigger is the event that started a reconciliation cycle.
type Trigger interface {
	Kind() string
}

// ConfigChanged is raised when the catalogue configuration changed.
type ConfigChanged struct{}

// RelationChanged is raised when the set of contributed items changed.
type RelationChanged struct{}

// CertAvailable is raised when TLS material appeared, changed or went away.
type CertAvailable struct{}

// IngressReady is raised when the ingress published a URL for the catalogue.
type IngressReady struct {
	URL string
}

// IngressRevoked is raised when the catalogue lost its ingress URL.
type IngressRevoked struct{}

// UpgradeRequested is raised when a newer operator version takes over.
type UpgradeRequested struct {
	From string
	To   string
}

// WorkloadReady is raised the first time the workload is seen.
type WorkloadReady struct{}

func (ConfigChanged) Kind() string    { return "config-changed" }
func (RelationChanged) Kind() string  { return "relation-changed" }
func (CertAvailable) Kind() string    { return "certificate-available" }
func (IngressReady) Kind() string     { return "ingress-ready" }
func (IngressRevoked) Kind() string   { return "ingress-revoked" }
func (UpgradeRequested) Kind() string { return "upgrade" }
func (WorkloadReady) Kind() string    { return "workload-ready" }

// RequiresCertSync reports whether the trigger makes the cycle write or remove
// the certificate files before anything else.
func RequiresCertSync(t Trigger) bool {
	switch t.(type) {
	case CertAvailable, IngressReady, IngressRevoked, UpgradeRequested, WorkloadReady:
		return true
	default:
		return false
	}
}
