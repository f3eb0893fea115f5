// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format turns a completed retrieval's raw pages into the item
// projections reviewers work from: every item, and the top TopN items.
// Both live in the object store; the Retrieval document only keeps
// lightweight references.
package format

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// ItemsAllKey is the key of the all-items projection of a payload key.
func ItemsAllKey(storageKey string) string { return "items_all__" + storageKey }

// ItemsTopKey is the key of the top-N projection of a payload key.
func ItemsTopKey(storageKey string) string { return "items_top25__" + storageKey }

// Formatter writes item projections.
type Formatter struct {
	docs    docstore.Session
	objects objstore.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewFormatter creates a formatter. m may be nil.
func NewFormatter(docs docstore.Session, objects objstore.Store, log zerolog.Logger, m *metrics.Metrics) *Formatter {
	return &Formatter{docs: docs, objects: objects, log: log, metrics: m}
}

// Format derives and stores the projections of h and links item references
// into its Retrieval. It does nothing when h does not need formatting.
// Running it again on the same handle rewrites identical data.
func (f *Formatter) Format(ctx context.Context, h *retrieval.Handle) error {
	log := f.log.With().Str("key", h.StorageKey).Logger()
	if !h.NeedToFormat {
		log.Info().Msg("no need to format retrieval")
		return nil
	}

	items := Flatten(h.RetrievalID, h.QueryLiteral, h.Pages, log)
	if err := StoreProjections(ctx, f.objects, h.StorageKey, items); err != nil {
		return err
	}

	var rec types.Retrieval
	if err := f.docs.Get(ctx, h.RetrievalID, &rec); err != nil {
		return fmt.Errorf("loading retrieval %s: %w", h.RetrievalID, err)
	}
	rec.Items = References(h.RetrievalID, items)
	if err := f.docs.Replace(ctx, h.RetrievalID, rec); err != nil {
		return fmt.Errorf("linking items to retrieval: %w", err)
	}

	f.metrics.RecordFormatted(len(items))
	log.Info().Int("items", len(items)).Msg("formatted retrieval")
	return nil
}

// Flatten lists the documents of pages in rank order, attaching each
// document's highlighting when the page has any for its id. A page whose
// echoed query differs from queryLiteral is logged and still used.
func Flatten(retrievalID, queryLiteral string, pages []search.Page, log zerolog.Logger) []types.RetrievedItemContent {
	items := make([]types.RetrievedItemContent, 0, search.DocCount(pages))
	for _, page := range pages {
		if q := page.ResponseHeader.Q(); q != queryLiteral {
			log.Warn().Str("q", q).Str("query_literal", queryLiteral).
				Msg("query param in retrieval does not match query literal")
		}
		for _, d := range page.Response.Docs {
			pos := len(items) + 1
			item := Content(d)
			item.Position = pos
			item.ItemID = types.RetrievedItemID(retrievalID, pos)
			if hl, ok := page.Highlighting[item.ID]; ok && len(hl) > 0 {
				item.Highlighting = hl
			}
			items = append(items, item)
		}
	}
	return items
}

// Content projects one search document.
func Content(d search.Doc) types.RetrievedItemContent {
	numCitations, numReferences := d.Citations()
	return types.RetrievedItemContent{
		ID:                d.ID(),
		Bibcode:           d.Bibcode(),
		Title:             d.String("title"),
		Abstract:          d.String("abstract"),
		Authors:           d.Strings("author"),
		Pub:               d.String("pub"),
		Pubdate:           d.String("pubdate"),
		Doctype:           d.String("doctype"),
		CitationCount:     d.Int("citation_count"),
		CitationCountNorm: d.Float("citation_count_norm"),
		NumCitations:      numCitations,
		NumReferences:     numReferences,
		Identifier:        d.Strings("identifier"),
		Reference:         d.Strings("reference"),
	}
}

// Top returns the first n items, which Flatten already orders by position.
func Top(items []types.RetrievedItemContent, n int) []types.RetrievedItemContent {
	return items[:min(n, len(items))]
}

// References builds the document-store references of items.
func References(retrievalID string, items []types.RetrievedItemContent) []types.RetrievedItem {
	refs := make([]types.RetrievedItem, len(items))
	for i, it := range items {
		refs[i] = types.RetrievedItem{
			ID:         it.ItemID,
			ADSBibcode: it.Bibcode,
			Retrieval:  retrievalID,
			Position:   it.Position,
		}
	}
	return refs
}

// StoreProjections writes the all-items and top-N projections of items.
func StoreProjections(ctx context.Context, s objstore.Store, storageKey string, items []types.RetrievedItemContent) error {
	if err := objstore.PutJSON(ctx, s, ItemsAllKey(storageKey), items); err != nil {
		return fmt.Errorf("storing all items: %w", err)
	}
	if err := objstore.PutJSON(ctx, s, ItemsTopKey(storageKey), Top(items, types.TopN)); err != nil {
		return fmt.Errorf("storing top items: %w", err)
	}
	return nil
}

// LoadItems reads a projection written by StoreProjections.
func LoadItems(ctx context.Context, s objstore.Store, key string) ([]types.RetrievedItemContent, error) {
	var items []types.RetrievedItemContent
	if err := objstore.GetJSON(ctx, s, key, &items); err != nil {
		return nil, err
	}
	return items, nil
}
