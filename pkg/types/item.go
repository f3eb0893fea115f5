// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// TopN is the number of leading items a reviewer judges.
const TopN = 25

// RetrievedItemContent is the denormalized, highlighted projection of one
// search result. It is stored in the object store, never in the document store.
type RetrievedItemContent struct {
	// ItemID is the "@id" of the matching RetrievedItem reference.
	ItemID string `json:"item_id" yaml:"item_id"`

	// Position is the 1-indexed rank within the retrieval.
	Position int `json:"position" yaml:"position"`

	ID       string   `json:"id" yaml:"id"`
	Bibcode  string   `json:"bibcode" yaml:"bibcode"`
	Title    string   `json:"title" yaml:"title"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []string `json:"author,omitempty" yaml:"author,omitempty"`
	Pub      string   `json:"pub,omitempty" yaml:"pub,omitempty"`
	Pubdate  string   `json:"pubdate,omitempty" yaml:"pubdate,omitempty"`
	Doctype  string   `json:"doctype,omitempty" yaml:"doctype,omitempty"`

	CitationCount     int     `json:"citation_count" yaml:"citation_count"`
	CitationCountNorm float64 `json:"citation_count_norm" yaml:"citation_count_norm"`
	NumCitations      int     `json:"num_citations" yaml:"num_citations"`
	NumReferences     int     `json:"num_references" yaml:"num_references"`

	// Identifier lists alternate identifiers (DOIs, arXiv ids, other bibcodes).
	Identifier []string `json:"identifier,omitempty" yaml:"identifier,omitempty"`

	// Reference lists the bibcodes this item cites.
	Reference []string `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Highlighting maps a field name to matched fragments.
	Highlighting map[string][]string `json:"highlighting,omitempty" yaml:"highlighting,omitempty"`

	// RelevantAsTopicReviewRef is set by the topic-review evaluator when the
	// item appears among the references of a known topic review.
	RelevantAsTopicReviewRef *bool `json:"relevant_as_topic_review_ref,omitempty" yaml:"relevant_as_topic_review_ref,omitempty"`
}

// Bibcodes returns the item's bibcode together with its alternate identifiers.
func (c RetrievedItemContent) Bibcodes() []string {
	out := make([]string, 0, len(c.Identifier)+1)
	if c.Bibcode != "" {
		out = append(out, c.Bibcode)
	}
	return append(out, c.Identifier...)
}

func sortItems(items []RetrievedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
}
