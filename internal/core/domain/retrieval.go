package domain

// RetrievalScope bounds a retrieval call to a workflow's documents.
type RetrievalScope struct {
	WorkflowID  string   `json:"workflow_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`

	// TopK caps the number of sources returned.
	TopK int `json:"top_k"`
}

// RetrievalSource is one ranked excerpt returned by retrieval.
type RetrievalSource struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	Content      string `json:"content"`

	// Similarity is in [0,1].
	Similarity float64 `json:"similarity"`
}

// RetrievalAnswer is a grounded answer with its confidence and sources.
type RetrievalAnswer struct {
	Answer string `json:"answer"`

	// Confidence is in [0,1]. Zero means nothing relevant was found.
	Confidence float64 `json:"confidence"`

	Sources []RetrievalSource `json:"sources,omitempty"`
}
