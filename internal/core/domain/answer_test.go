package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnswerThresholds(t *testing.T) {
	tests := []struct {
		name         string
		confidence   float64
		accepted     bool
		answerType   AnswerType
		completeness Completeness
		bucket       ConfidenceBucket
	}{
		{"zero", 0.0, false, AnswerInferred, Partial, BucketLow},
		{"just below accept", 0.29, false, AnswerInferred, Partial, BucketLow},
		{"accept boundary", 0.3, true, AnswerInferred, Partial, BucketLow},
		{"below medium", 0.59, true, AnswerInferred, Partial, BucketLow},
		{"medium boundary", 0.6, true, AnswerInferred, Partial, BucketMedium},
		{"complete boundary is partial", 0.7, true, AnswerInferred, Partial, BucketMedium},
		{"just above complete", 0.71, true, AnswerInferred, Complete, BucketMedium},
		{"direct boundary is inferred", 0.8, true, AnswerInferred, Complete, BucketHigh},
		{"just above direct", 0.81, true, AnswerDirect, Complete, BucketHigh},
		{"certain", 1.0, true, AnswerDirect, Complete, BucketHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.accepted, AcceptConfidence(tt.confidence))
			assert.Equal(t, tt.answerType, ClassifyAnswerType(tt.confidence))
			assert.Equal(t, tt.completeness, ClassifyCompleteness(tt.confidence))
			assert.Equal(t, tt.bucket, ConfidenceBucketOf(tt.confidence))
		})
	}
}

func TestParseCategoryAndPriority(t *testing.T) {
	assert.Equal(t, CategoryTechnical, ParseCategory("technical"))
	assert.Equal(t, CategoryCompliance, ParseCategory("compliance"))
	assert.Equal(t, CategoryOther, ParseCategory("legal"))
	assert.Equal(t, CategoryOther, ParseCategory(""))

	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))
}

func TestUpload_Validate(t *testing.T) {
	assert.NoError(t, Upload{Filename: "rfp.txt", Content: []byte("x")}.Validate())
	assert.ErrorIs(t, Upload{Content: []byte("x")}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, Upload{Filename: "rfp.txt"}.Validate(), ErrInvalidInput)
}
