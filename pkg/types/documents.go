// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the documents persisted by ads-query-eval and the
// configuration shared across components.
//
// Every document carries an "@id" of the form "<Type>/<suffix>" and is stored
// in the document store under its DocType.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Document type names.
const (
	TypeQuery               = "Query"
	TypeRetrieval           = "Retrieval"
	TypeRetrievedItem       = "RetrievedItem"
	TypeEvaluation          = "Evaluation"
	TypeItemOfEvaluation    = "ItemOfEvaluation"
	TypeUser                = "User"
	TypeInviteLink          = "InviteLink"
	TypeCredentialsRequest  = "CredentialsRequest"
	TypeEvaluatingProcedure = "EvaluatingProcedure"
)

// RetrievalStatus is the outcome recorded on a Retrieval.
type RetrievalStatus string

const (
	RetrievalCompleted RetrievalStatus = "completed"
	// RetrievalAborted marks a fetch identical to the previous completed
	// retrieval. No payload is stored for it.
	RetrievalAborted RetrievalStatus = "aborted"
)

// EvaluationStatus tracks an Evaluation through review.
type EvaluationStatus string

const (
	EvaluationInProgress EvaluationStatus = "in progress"
	EvaluationCompleted  EvaluationStatus = "completed"
)

// Relevance is a reviewer's judgment of one retrieved item.
type Relevance string

const (
	Relevant         Relevance = "relevant"
	SomewhatRelevant Relevance = "somewhat relevant"
	NotRelevant      Relevance = "not relevant"
)

// Valid reports whether r is a known relevance value.
func (r Relevance) Valid() bool {
	switch r {
	case Relevant, SomewhatRelevant, NotRelevant:
		return true
	}
	return false
}

// Uncertainty annotates how sure a reviewer was of a judgment.
type Uncertainty string

const (
	Certain             Uncertainty = "certain"
	Uncertain           Uncertainty = "uncertain"
	UncertaintyNotGiven Uncertainty = "not supplied"
)

// Valid reports whether u is a known uncertainty value.
func (u Uncertainty) Valid() bool {
	switch u {
	case Certain, Uncertain, UncertaintyNotGiven:
		return true
	}
	return false
}

// Query is a literal ADS search query. Queries are seeded once and never change.
type Query struct {
	ID           string `json:"@id,omitempty" yaml:"id,omitempty"`
	QueryLiteral string `json:"query_literal" yaml:"query_literal"`
}

func (Query) DocType() string { return TypeQuery }

// Retrieval records one dated fetch attempt for a Query.
type Retrieval struct {
	ID string `json:"@id,omitempty" yaml:"id,omitempty"`

	// Query is the "@id" of the owning Query.
	Query string `json:"query" yaml:"query"`

	// S3Key is the object-store key of the raw paginated payload.
	S3Key string `json:"s3_key" yaml:"s3_key"`

	Status RetrievalStatus `json:"status" yaml:"status"`
	Done   bool            `json:"done" yaml:"done"`
	DoneAt *time.Time      `json:"done_at,omitempty" yaml:"done_at,omitempty"`

	// Items is empty on creation and filled once the retrieval is formatted.
	Items []RetrievedItem `json:"items" yaml:"items"`
}

func (Retrieval) DocType() string { return TypeRetrieval }

// TopItems returns the first n items ordered by position.
func (r Retrieval) TopItems(n int) []RetrievedItem {
	items := make([]RetrievedItem, 0, min(n, len(r.Items)))
	for _, it := range r.Items {
		if it.Position >= 1 && it.Position <= n {
			items = append(items, it)
		}
	}
	sortItems(items)
	return items
}

// RetrievedItem is a lightweight reference to one ranked search result.
// The bulky content lives in the object store.
type RetrievedItem struct {
	ID         string `json:"@id" yaml:"id"`
	ADSBibcode string `json:"ads_bibcode" yaml:"ads_bibcode"`
	Retrieval  string `json:"retrieval" yaml:"retrieval"`

	// Position is the 1-indexed rank within the retrieval.
	Position int `json:"position" yaml:"position"`
}

// RetrievedItemID derives a stable item id from its retrieval and position,
// so re-formatting a retrieval keeps existing judgments attached.
func RetrievedItemID(retrievalID string, position int) string {
	return fmt.Sprintf("%s/%s-%04d", TypeRetrievedItem, IDSuffix(retrievalID), position)
}

// IDSuffix strips the "<Type>/" prefix from a document id.
func IDSuffix(id string) string {
	if i := strings.Index(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Evaluation is one review of a Retrieval, by a User or an automated procedure.
type Evaluation struct {
	ID string `json:"@id,omitempty" yaml:"id,omitempty"`

	// Evaluator is the "@id" of a User or an EvaluatingProcedure.
	Evaluator string `json:"evaluator" yaml:"evaluator"`
	Retrieval string `json:"retrieval" yaml:"retrieval"`

	Status    EvaluationStatus `json:"status" yaml:"status"`
	Done      bool             `json:"done" yaml:"done"`
	DoneAt    *time.Time       `json:"done_at,omitempty" yaml:"done_at,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`

	PAt25   *float64 `json:"p_at_25,omitempty" yaml:"p_at_25,omitempty"`
	RAt1000 *float64 `json:"r_at_1000,omitempty" yaml:"r_at_1000,omitempty"`

	// BelievedIntent is the reviewer's free-text reading of what the query is after.
	BelievedIntent string `json:"believed_intent,omitempty" yaml:"believed_intent,omitempty"`
}

func (Evaluation) DocType() string { return TypeEvaluation }

// ItemOfEvaluation is one judgment of one RetrievedItem within an Evaluation.
type ItemOfEvaluation struct {
	ID               string           `json:"@id,omitempty" yaml:"id,omitempty"`
	Evaluation       string           `json:"evaluation" yaml:"evaluation"`
	RetrievedItem    string           `json:"retrieved_item" yaml:"retrieved_item"`
	EvaluationStatus EvaluationStatus `json:"evaluation_status" yaml:"evaluation_status"`
	Relevance        Relevance        `json:"relevance" yaml:"relevance"`
	Uncertainty      Uncertainty      `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"`
}

func (ItemOfEvaluation) DocType() string { return TypeItemOfEvaluation }

// User is a reviewer.
type User struct {
	ID             string `json:"@id,omitempty" yaml:"id,omitempty"`
	EmailAddress   string `json:"email_address" yaml:"email_address"`
	Username       string `json:"username" yaml:"username"`
	HashedPassword string `json:"hashed_password" yaml:"-"`
}

func (User) DocType() string { return TypeUser }

// InviteLink authorizes one or more credentials requests.
type InviteLink struct {
	ID        string    `json:"@id,omitempty" yaml:"id,omitempty"`
	Token     string    `json:"token" yaml:"token"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func (InviteLink) DocType() string { return TypeInviteLink }

// CredentialsRequest records who asked for credentials through which link.
type CredentialsRequest struct {
	ID           string    `json:"@id,omitempty" yaml:"id,omitempty"`
	EmailAddress string    `json:"email_address" yaml:"email_address"`
	InviteLink   string    `json:"invite_link" yaml:"invite_link"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

func (CredentialsRequest) DocType() string { return TypeCredentialsRequest }

// EvaluatingProcedure identifies an automated evaluator and its configuration.
type EvaluatingProcedure struct {
	ID      string `json:"@id,omitempty" yaml:"id,omitempty"`
	FQN     string `json:"fqn" yaml:"fqn"`
	Version string `json:"version" yaml:"version"`

	// Config maps a query literal to the bibcode queries of its topic reviews.
	Config map[string][]string `json:"config" yaml:"config"`
}

func (EvaluatingProcedure) DocType() string { return TypeEvaluatingProcedure }
