// Package catalogue defines the catalogue entry exchanged between applications and
// the catalogue, and how entries are assembled from relation data bags.
package catalogue

import (
	"encoding/json"

	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

var logger = loggerpkg.GetNamedLogger("catalogue")

// Data bag keys understood by the catalogue.
const (
	KeyName         = "name"
	KeyURL          = "url"
	KeyIcon         = "icon"
	KeyDescription  = "description"
	KeyAPIDocs      = "api_docs"
	KeyAPIEndpoints = "api_endpoints"
)

// BlankURL is the URL an entry uses when the application has nothing to link to.
const BlankURL = "about:blank"

// Item is one application entry in the catalogue.
// Icon is an iconify mdi identifier, see https://icon-sets.iconify.design/mdi.
type Item struct {
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Icon         string            `json:"icon"`
	Description  string            `json:"description"`
	APIDocs      string            `json:"api_docs"`
	APIEndpoints map[string]string `json:"api_endpoints"`
}

// Relation is the view of one remote contributor: the application that owns the
// data bag, the units of that application that joined, and the data bag itself.
type Relation struct {
	App   string
	Units []string
	Data  map[string]string
}

// Joined reports whether the remote side has both an identity and a unit.
func (r Relation) Joined() bool {
	return r.App != "" && len(r.Units) > 0
}

// ItemsFromRelations assembles catalogue items in relation order. Relations whose
// remote side has not joined yet are skipped.
func ItemsFromRelations(relations []Relation) []Item {
	items := make([]Item, 0, len(relations))
	for _, rel := range relations {
		if !rel.Joined() {
			logger.Debugf("skipping relation without joined remote side, app: %q, units: %d", rel.App, len(rel.Units))
			continue
		}
		items = append(items, ItemFromDataBag(rel.Data))
	}
	return items
}

// ItemFromDataBag reads an Item out of a flat data bag. Missing keys become empty
// strings and a malformed api_endpoints value becomes an empty map.
func ItemFromDataBag(data map[string]string) Item {
	return Item{
		Name:         data[KeyName],
		URL:          data[KeyURL],
		Icon:         data[KeyIcon],
		Description:  data[KeyDescription],
		APIDocs:      data[KeyAPIDocs],
		APIEndpoints: decodeEndpoints(data[KeyAPIEndpoints]),
	}
}

// DataBag flattens the item into the key-value form sent over a relation.
func (i Item) DataBag() map[string]string {
	data := map[string]string{
		KeyName:        i.Name,
		KeyURL:         i.URL,
		KeyIcon:        i.Icon,
		KeyDescription: i.Description,
	}
	if i.APIDocs != "" {
		data[KeyAPIDocs] = i.APIDocs
	}
	if len(i.APIEndpoints) > 0 {
		// a map[string]string always marshals
		raw, _ := json.Marshal(i.APIEndpoints)
		data[KeyAPIEndpoints] = string(raw)
	}
	return data
}

func decodeEndpoints(raw string) map[string]string {
	endpoints := map[string]string{}
	if raw == "" {
		return endpoints
	}
	if err := json.Unmarshal([]byte(raw), &endpoints); err != nil {
		logger.Warnf("ignoring malformed %s: %v", KeyAPIEndpoints, err)
		return map[string]string{}
	}
	if endpoints == nil {
		return map[string]string{}
	}
	return endpoints
}
