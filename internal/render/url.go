package render

import (
	"fmt"
	"net"
	"strconv"
)

// ServiceFQDN is the in-cluster DNS name of a Service.
func ServiceFQDN(service, namespace string) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", service, namespace)
}

// InternalURL is the in-cluster URL of the catalogue. The port follows the nginx template in use.
func InternalURL(service, namespace string, tls bool) string {
	scheme, port := "http", HTTPPort
	if tls {
		scheme, port = "https", HTTPSPort
	}
	return scheme + "://" + net.JoinHostPort(ServiceFQDN(service, namespace), strconv.Itoa(port))
}
