package render

// Layer is a declarative supervision specification for the workload.
type Layer struct {
	Summary     string             `json:"summary,omitempty"`
	Description string             `json:"description,omitempty"`
	Services    map[string]Service `json:"services,omitempty"`
}

// Service is one supervised process of a Layer.
type Service struct {
	Override string `json:"override"`
	Summary  string `json:"summary"`
	Command  string `json:"command"`
	Startup  string `json:"startup"`
}

// NginxCommand runs nginx in the foreground with the rendered configuration.
const NginxCommand = "nginx -g 'daemon off;' -c " + NginxConfigPath

// DesiredLayer returns the layer that runs nginx. The TLS and plaintext variants
// both read NginxConfigPath, so the layer does not depend on TLS.
func DesiredLayer() Layer {
	return Layer{
		Summary:     "catalogue layer",
		Description: "supervision layer for the catalogue",
		Services: map[string]Service{
			ServiceName: {
				Override: "replace",
				Summary:  ServiceName,
				Command:  NginxCommand,
				Startup:  "enabled",
			},
		},
	}
}
