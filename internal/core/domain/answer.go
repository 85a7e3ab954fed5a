package domain

import "time"

// Confidence thresholds used when classifying retrieval answers.
const (
	// AcceptThreshold is the minimum confidence for an answer to be accepted.
	AcceptThreshold = 0.3

	// DirectThreshold is exceeded by direct answers.
	DirectThreshold = 0.8

	// CompleteThreshold is exceeded by complete answers.
	CompleteThreshold = 0.7

	// CriticalThreshold marks high-priority answers below it as critical gaps.
	CriticalThreshold = 0.6

	// HighBucketThreshold and MediumBucketThreshold bound the quality histogram.
	HighBucketThreshold   = 0.8
	MediumBucketThreshold = 0.6
)

// Reasons recorded on unanswered questions.
const (
	ReasonNoInformation = "No relevant information found"
	ReasonLowConfidence = "Low confidence answer"
)

// AnswerType says whether an answer was stated or inferred.
type AnswerType string

// Answer types.
const (
	AnswerDirect   AnswerType = "direct"
	AnswerInferred AnswerType = "inferred"
)

// Completeness says whether an answer fully covers its question.
type Completeness string

// Completeness values.
const (
	Complete Completeness = "complete"
	Partial  Completeness = "partial"
)

// AcceptConfidence reports whether a retrieval confidence yields an answer.
func AcceptConfidence(c float64) bool {
	return c >= AcceptThreshold
}

// ClassifyAnswerType returns direct above 0.8, inferred otherwise.
func ClassifyAnswerType(c float64) AnswerType {
	if c > DirectThreshold {
		return AnswerDirect
	}
	return AnswerInferred
}

// ClassifyCompleteness returns complete above 0.7, partial otherwise.
func ClassifyCompleteness(c float64) Completeness {
	if c > CompleteThreshold {
		return Complete
	}
	return Partial
}

// ConfidenceBucket is one bar of the quality histogram.
type ConfidenceBucket string

// Histogram buckets.
const (
	BucketHigh   ConfidenceBucket = "high"
	BucketMedium ConfidenceBucket = "medium"
	BucketLow    ConfidenceBucket = "low"
)

// ConfidenceBucketOf places a confidence score in the histogram.
func ConfidenceBucketOf(c float64) ConfidenceBucket {
	switch {
	case c >= HighBucketThreshold:
		return BucketHigh
	case c >= MediumBucketThreshold:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Citation is one source excerpt supporting an answer.
type Citation struct {
	DocumentName string  `json:"document_name"`
	Excerpt      string  `json:"excerpt"`
	Relevance    float64 `json:"relevance"`
}

// Answer is the current answer to a question. A workflow holds at most one
// answer per question id; a new extraction run replaces all of them.
type Answer struct {
	// WorkflowID links to the owning Workflow.
	WorkflowID string `json:"workflow_id"`

	// QuestionID references the answered Question.
	QuestionID string `json:"question_id"`

	Text         string       `json:"text"`
	Confidence   float64      `json:"confidence"`
	Type         AnswerType   `json:"type"`
	Completeness Completeness `json:"completeness"`

	// Sources are ordered by relevance.
	Sources []Citation `json:"sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// UnansweredQuestion documents a question without an acceptable answer.
type UnansweredQuestion struct {
	QuestionID string   `json:"question_id"`
	Question   string   `json:"question"`
	Category   Category `json:"category"`
	Priority   Priority `json:"priority"`
	Reason     string   `json:"reason"`
}

// AnswerMethod records how an answer set was produced.
type AnswerMethod string

// Answer methods.
const (
	MethodRetrieval     AnswerMethod = "retrieval"
	MethodModelFallback AnswerMethod = "model_fallback"
)

// CategoryCoverage is the answered share of one question category.
type CategoryCoverage struct {
	Total    int     `json:"total"`
	Answered int     `json:"answered"`
	Coverage float64 `json:"coverage"`
}

// CriticalGap is a high-priority question that is unanswered or weakly answered.
type CriticalGap struct {
	QuestionID string  `json:"question_id"`
	Question   string  `json:"question"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// GapAnalysis summarises which questions remain open.
type GapAnalysis struct {
	TotalQuestions int `json:"total_questions"`
	Answered       int `json:"answered"`
	Unanswered     int `json:"unanswered"`

	// Coverage is the answered percentage, 0-100.
	Coverage float64 `json:"coverage"`

	ByCategory   map[Category]CategoryCoverage `json:"by_category,omitempty"`
	CriticalGaps []CriticalGap                 `json:"critical_gaps,omitempty"`
}

// LengthStats describes answer text lengths in characters.
type LengthStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
}

// QualityMetrics describes the confidence and sourcing of an answer set.
type QualityMetrics struct {
	MeanConfidence float64                  `json:"mean_confidence"`
	Histogram      map[ConfidenceBucket]int `json:"histogram,omitempty"`
	Length         LengthStats              `json:"length"`

	// References counts citations per source document name.
	References map[string]int `json:"references,omitempty"`
}

// DocumentUtilization reports how heavily answers lean on one source document.
type DocumentUtilization struct {
	DocumentName string `json:"document_name"`
	Citations    int    `json:"citations"`

	// Score is Citations relative to the most-cited document, 0-1.
	Score float64 `json:"score"`
}

// AnswerSet is the output of the answer extraction stage.
type AnswerSet struct {
	Answers     []Answer              `json:"answers,omitempty"`
	Unanswered  []UnansweredQuestion  `json:"unanswered,omitempty"`
	Method      AnswerMethod          `json:"method"`
	Gaps        GapAnalysis           `json:"gaps"`
	Quality     QualityMetrics        `json:"quality"`
	Utilization []DocumentUtilization `json:"utilization,omitempty"`
	Provenance  Provenance            `json:"provenance"`
}
