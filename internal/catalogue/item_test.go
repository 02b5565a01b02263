package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemsFromRelations(t *testing.T) {
	tests := []struct {
		name      string
		relations []Relation
		want      []Item
	}{
		{
			name: "joined relation contributes an item",
			relations: []Relation{{
				App:   "rc",
				Units: []string{"rc-0"},
				Data:  map[string]string{"name": "remote-charm", "url": "https://localhost", "icon": "some-cool-icon"},
			}},
			want: []Item{{
				Name:         "remote-charm",
				URL:          "https://localhost",
				Icon:         "some-cool-icon",
				APIEndpoints: map[string]string{},
			}},
		},
		{
			name: "identity without units is skipped",
			relations: []Relation{{
				App:  "rc",
				Data: map[string]string{"name": "remote-charm"},
			}},
			want: []Item{},
		},
		{
			name: "units without identity are skipped",
			relations: []Relation{{
				Units: []string{"rc-0"},
				Data:  map[string]string{"name": "remote-charm"},
			}},
			want: []Item{},
		},
		{
			name: "missing name becomes empty",
			relations: []Relation{{
				App:   "rc",
				Units: []string{"rc-0"},
				Data:  map[string]string{"url": "https://localhost", "icon": "web"},
			}},
			want: []Item{{
				URL:          "https://localhost",
				Icon:         "web",
				APIEndpoints: map[string]string{},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ItemsFromRelations(tt.relations))
		})
	}
}

func TestItemFromDataBagAPIFields(t *testing.T) {
	item := ItemFromDataBag(map[string]string{
		"name":          "remote-charm",
		"url":           "https://localhost",
		"icon":          "some-cool-icon",
		"api_docs":      "some_url_to_upstream_docs",
		"api_endpoints": `{"endpoint_1":"some_endpoint_1","endpoint_2":"some_endpoint_2"}`,
	})

	assert.Equal(t, "some_url_to_upstream_docs", item.APIDocs)
	assert.Equal(t, map[string]string{"endpoint_1": "some_endpoint_1", "endpoint_2": "some_endpoint_2"}, item.APIEndpoints)
}

func TestItemFromDataBagMalformedEndpoints(t *testing.T) {
	for _, raw := range []string{"not json", `["a"]`, "null", `{"a": 1}`} {
		item := ItemFromDataBag(map[string]string{"name": "x", "api_endpoints": raw})
		assert.Equal(t, "x", item.Name, raw)
		assert.Equal(t, map[string]string{}, item.APIEndpoints, raw)
	}
}

func TestDataBagRoundTrip(t *testing.T) {
	item := Item{
		Name:         "grafana",
		URL:          "https://grafana.example",
		Icon:         "chart-areaspline",
		Description:  "Dashboards",
		APIEndpoints: map[string]string{"health": "/api/health"},
	}

	bag := item.DataBag()
	assert.NotContains(t, bag, KeyAPIDocs)
	assert.Equal(t, `{"health":"/api/health"}`, bag[KeyAPIEndpoints])
	assert.Equal(t, item, ItemFromDataBag(bag))
}
