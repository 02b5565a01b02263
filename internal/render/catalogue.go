package render

import (
	"encoding/json"
	"net"
	"net/url"

	"github.com/uri-tech/catalogue-operator/internal/catalogue"
	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

var logger = loggerpkg.GetNamedLogger("render")

// Document is the content of /web/config.json.
type Document struct {
	Title       string           `json:"title"`
	Tagline     string           `json:"tagline"`
	Description string           `json:"description"`
	Links       []Link           `json:"links"`
	Apps        []catalogue.Item `json:"apps"`
}

// BuildDocument assembles the catalogue document, applying the hostname override
// to item URLs. The items passed in are not modified.
func BuildDocument(cfg Config, items []catalogue.Item) (*Document, error) {
	links, err := ParseLinks(cfg.Links)
	if err != nil {
		return nil, err
	}

	apps := make([]catalogue.Item, 0, len(items))
	for _, item := range items {
		if item.APIEndpoints == nil {
			item.APIEndpoints = map[string]string{}
		}
		if cfg.OverrideHostname != "" {
			item.URL = OverrideHostname(item.URL, cfg.OverrideHostname)
		}
		apps = append(apps, item)
	}

	return &Document{
		Title:       cfg.Title,
		Tagline:     cfg.Tagline,
		Description: cfg.Description,
		Links:       links,
		Apps:        apps,
	}, nil
}

// RenderCatalogue returns the serialized catalogue document. Identical inputs
// give byte-identical output.
func RenderCatalogue(cfg Config, items []catalogue.Item) ([]byte, error) {
	doc, err := BuildDocument(cfg, items)
	if err != nil {
		return nil, err
	}
	// Struct fields keep declaration order and map keys are sorted, so the output is stable.
	return json.Marshal(doc)
}

// OverrideHostname replaces the host of rawURL with hostname, keeping scheme,
// port, path and query. URLs without a host (about:blank, relative paths) and
// unparsable URLs are returned unchanged.
func OverrideHostname(rawURL, hostname string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		logger.Warnf("not overriding hostname of unparsable url %q: %v", rawURL, err)
		return rawURL
	}
	if u.Host == "" {
		return rawURL
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(hostname, port)
	} else {
		u.Host = hostname
	}
	return u.String()
}
