// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evaluation

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/ads-query-eval/pkg/types"
)

func TestParseForm(t *testing.T) {
	v := url.Values{}
	v.Set("RetrievedItem/abc-0001/relevance", "relevant")
	v.Set("RetrievedItem/abc-0001/uncertainty", "uncertain")
	v.Set("RetrievedItem/abc-0002/uncertainty", "certain")
	v.Set("RetrievedItem/abc-0003/comment", "ignored")
	v.Set("csrf", "ignored")
	v.Set("intent", "  find reviews of dark matter  ")

	sub := ParseForm(v)

	assert.Equal(t, "find reviews of dark matter", sub.BelievedIntent)
	assert.Equal(t, map[string]Judgment{
		"RetrievedItem/abc-0001": {Relevance: types.Relevant, Uncertainty: types.Uncertain},
		"RetrievedItem/abc-0002": {Uncertainty: types.Certain},
	}, sub.Judgments)
}

func TestParseFormEmpty(t *testing.T) {
	sub := ParseForm(url.Values{})
	assert.Empty(t, sub.Judgments)
	assert.Empty(t, sub.BelievedIntent)
}

func TestFieldNameRoundTrip(t *testing.T) {
	id := types.RetrievedItemID("Retrieval/xyz", 7)
	v := url.Values{}
	v.Set(FieldName(id, "relevance"), string(types.SomewhatRelevant))

	sub := ParseForm(v)
	assert.Equal(t, types.SomewhatRelevant, sub.Judgments[id].Relevance)
}
