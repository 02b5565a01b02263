// Package render produces the desired content of the workload artifacts: the
// catalogue document served to the browser, the nginx configuration and the
// supervision layer that runs nginx.
package render

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// Config is the operator-level configuration of one catalogue.
type Config struct {
	Title       string
	Tagline     string
	Description string
	// Links is the raw structured value holding the list of links, as set by the operator.
	Links            string
	OverrideHostname string
}

// Link is an entry of the links list shown above the applications.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Icon string `json:"icon,omitempty"`
}

// ConfigError reports configuration that cannot be used. It blocks the cycle
// until the configuration is corrected.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParseLinks parses the links value, which may be written as JSON or YAML.
// An empty value means no links.
func ParseLinks(raw string) ([]Link, error) {
	links := []Link{}
	if strings.TrimSpace(raw) == "" {
		return links, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &links); err != nil {
		return nil, &ConfigError{Field: "links", Err: err}
	}
	if links == nil {
		links = []Link{}
	}
	return links, nil
}
