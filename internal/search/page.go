// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"strings"
)

// Page is one paginated response of the ADS search API.
type Page struct {
	ResponseHeader ResponseHeader `json:"responseHeader"`
	Response       ResultSet      `json:"response"`

	// Highlighting maps a document id to field -> fragments.
	Highlighting map[string]map[string][]string `json:"highlighting,omitempty"`
}

// ResponseHeader echoes the request as the API saw it.
type ResponseHeader struct {
	Status int                        `json:"status"`
	QTime  int                        `json:"QTime"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

// Q returns the query parameter recorded in the header. Solr reports a
// repeated parameter as a list; the first value is returned then.
func (h ResponseHeader) Q() string {
	raw, ok := h.Params["q"]
	if !ok {
		return ""
	}
	return firstString(raw)
}

// ResultSet holds the documents of one page.
type ResultSet struct {
	NumFound int   `json:"numFound"`
	Start    int   `json:"start"`
	Docs     []Doc `json:"docs"`
}

// Doc is one search result. Fields are kept raw so the payload round-trips
// through storage unchanged; accessors decode on demand.
type Doc map[string]json.RawMessage

// ID returns the document's search-engine id, used to key highlighting.
func (d Doc) ID() string {
	raw, ok := d["id"]
	if !ok {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return firstString(raw)
}

// Bibcode returns the document's bibcode.
func (d Doc) Bibcode() string { return d.String("bibcode") }

// String returns a string field. A list-valued field is joined with newlines,
// which is how multi-part titles are rendered.
func (d Doc) String(field string) string {
	raw, ok := d[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "\n")
	}
	return ""
}

// Strings returns a list-valued field. A scalar string yields a one-element list.
func (d Doc) Strings(field string) []string {
	raw, ok := d[field]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

// Int returns an integer field, or zero.
func (d Doc) Int(field string) int {
	var n int
	if raw, ok := d[field]; ok {
		_ = json.Unmarshal(raw, &n)
	}
	return n
}

// Float returns a numeric field, or zero.
func (d Doc) Float(field string) float64 {
	var f float64
	if raw, ok := d[field]; ok {
		_ = json.Unmarshal(raw, &f)
	}
	return f
}

// Citations returns the citation and reference counts. Top-level
// num_citations/num_references win; otherwise they come from the
// "[citations]" pseudo-field.
func (d Doc) Citations() (numCitations, numReferences int) {
	numCitations, numReferences = d.Int("num_citations"), d.Int("num_references")
	raw, ok := d["[citations]"]
	if !ok {
		return numCitations, numReferences
	}
	var c struct {
		NumCitations  int `json:"num_citations"`
		NumReferences int `json:"num_references"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return numCitations, numReferences
	}
	if numCitations == 0 {
		numCitations = c.NumCitations
	}
	if numReferences == 0 {
		numReferences = c.NumReferences
	}
	return numCitations, numReferences
}

// DocCount returns the total number of documents across pages.
func DocCount(pages []Page) int {
	n := 0
	for _, p := range pages {
		n += len(p.Response.Docs)
	}
	return n
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
