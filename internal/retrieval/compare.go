// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"bytes"
	"encoding/json"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/search"
)

// EqualPayloads reports whether two payloads are the same JSON, ignoring
// object key order.
func EqualPayloads(a, b []search.Page) (bool, error) {
	return equalPayloads(a, b, false)
}

// EqualIgnoringQTime is EqualPayloads with each page's responseHeader.QTime
// left out of the comparison.
func EqualIgnoringQTime(a, b []search.Page) (bool, error) {
	return equalPayloads(a, b, true)
}

func equalPayloads(a, b []search.Page, dropQTime bool) (bool, error) {
	ca, err := canonical(a, dropQTime)
	if err != nil {
		return false, err
	}
	cb, err := canonical(b, dropQTime)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// canonical re-encodes pages through generic maps, which encoding/json
// writes with sorted keys.
func canonical(pages []search.Page, dropQTime bool) ([]byte, error) {
	data, err := json.Marshal(pages)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSerialization, err, "encoding payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic []map[string]any
	if err := dec.Decode(&generic); err != nil {
		return nil, apperr.Wrap(apperr.KindSerialization, err, "decoding payload")
	}
	if dropQTime {
		for _, page := range generic {
			if hdr, ok := page["responseHeader"].(map[string]any); ok {
				delete(hdr, "QTime")
			}
		}
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSerialization, err, "encoding payload")
	}
	return out, nil
}
