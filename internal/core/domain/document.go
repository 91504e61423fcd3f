package domain

import "time"

// StartRequest starts (or resumes) the analysis of one document.
type StartRequest struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	KnownRisks []string `json:"known_risks,omitempty"`
}

// AnalysisRequest is the queued form of a StartRequest: the document text lives in
// object storage under StorageKey.
type AnalysisRequest struct {
	DocumentID  string    `json:"document_id"`
	StorageKey  string    `json:"storage_key"`
	Filename    string    `json:"filename,omitempty"`
	KnownRisks  []string  `json:"known_risks,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
