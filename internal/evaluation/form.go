// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evaluation

import (
	"net/url"
	"strings"

	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// IntentField is the form field carrying the believed query intent.
const IntentField = "intent"

// ParseForm decodes a submitted evaluation form. Item fields are named
// "<RetrievedItem id>/<property>" where property is relevance or
// uncertainty; other fields are ignored.
func ParseForm(values url.Values) Submission {
	sub := Submission{
		Judgments:      map[string]Judgment{},
		BelievedIntent: strings.TrimSpace(values.Get(IntentField)),
	}
	prefix := types.TypeRetrievedItem + "/"
	for name, vals := range values {
		if !strings.HasPrefix(name, prefix) || len(vals) == 0 {
			continue
		}
		i := strings.LastIndex(name, "/")
		if i <= len(prefix) {
			continue
		}
		id, prop := name[:i], name[i+1:]
		value := strings.TrimSpace(vals[0])

		j := sub.Judgments[id]
		switch prop {
		case "relevance":
			j.Relevance = types.Relevance(value)
		case "uncertainty":
			j.Uncertainty = types.Uncertainty(value)
		default:
			continue
		}
		sub.Judgments[id] = j
	}
	return sub
}

// FieldName returns the form field name of an item property.
func FieldName(itemID, property string) string {
	return itemID + "/" + property
}
