package agents

import (
	"sort"
	"unicode/utf8"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// Analysis is the post-processing applied to every answer set.
type Analysis struct {
	Gaps        domain.GapAnalysis
	Quality     domain.QualityMetrics
	Utilization []domain.DocumentUtilization
}

// AnalyzeAnswers computes gap analysis, quality metrics and document
// utilization for an answer set.
func AnalyzeAnswers(questions []domain.Question, answers []domain.Answer, unanswered []domain.UnansweredQuestion) Analysis {
	return Analysis{
		Gaps:        gapAnalysis(questions, answers, unanswered),
		Quality:     qualityMetrics(answers),
		Utilization: documentUtilization(answers),
	}
}

// Apply copies the analysis into set.
func (a Analysis) Apply(set *domain.AnswerSet) {
	set.Gaps = a.Gaps
	set.Quality = a.Quality
	set.Utilization = a.Utilization
}

func gapAnalysis(questions []domain.Question, answers []domain.Answer, unanswered []domain.UnansweredQuestion) domain.GapAnalysis {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.QuestionID] = q
	}

	total := len(questions)
	if total == 0 {
		total = len(answers) + len(unanswered)
	}

	gaps := domain.GapAnalysis{
		TotalQuestions: total,
		Answered:       len(answers),
		Unanswered:     len(unanswered),
		ByCategory:     make(map[domain.Category]domain.CategoryCoverage),
	}
	if total > 0 {
		gaps.Coverage = float64(len(answers)) * 100 / float64(total)
	}

	for _, q := range questions {
		cc := gaps.ByCategory[q.Category]
		cc.Total++
		gaps.ByCategory[q.Category] = cc
	}

	for _, a := range answers {
		q, known := byID[a.QuestionID]
		category := domain.CategoryOther
		if known {
			category = q.Category
		}
		cc := gaps.ByCategory[category]
		cc.Answered++
		if !known {
			cc.Total++
		}
		gaps.ByCategory[category] = cc

		if known && q.Priority == domain.PriorityHigh && a.Confidence < domain.CriticalThreshold {
			gaps.CriticalGaps = append(gaps.CriticalGaps, domain.CriticalGap{
				QuestionID: a.QuestionID,
				Question:   q.Text,
				Reason:     "Low confidence answer to high-priority question",
				Confidence: a.Confidence,
			})
		}
	}

	for _, u := range unanswered {
		if _, known := byID[u.QuestionID]; !known && len(questions) > 0 {
			continue
		}
		if len(questions) == 0 {
			cc := gaps.ByCategory[u.Category]
			cc.Total++
			gaps.ByCategory[u.Category] = cc
		}
		if u.Priority == domain.PriorityHigh {
			gaps.CriticalGaps = append(gaps.CriticalGaps, domain.CriticalGap{
				QuestionID: u.QuestionID,
				Question:   u.Question,
				Reason:     u.Reason,
			})
		}
	}

	for category, cc := range gaps.ByCategory {
		if cc.Total > 0 {
			cc.Coverage = float64(cc.Answered) * 100 / float64(cc.Total)
		}
		gaps.ByCategory[category] = cc
	}

	return gaps
}

func qualityMetrics(answers []domain.Answer) domain.QualityMetrics {
	m := domain.QualityMetrics{
		Histogram: map[domain.ConfidenceBucket]int{
			domain.BucketHigh:   0,
			domain.BucketMedium: 0,
			domain.BucketLow:    0,
		},
		References: make(map[string]int),
	}
	if len(answers) == 0 {
		return m
	}

	var confSum float64
	var lenSum int
	m.Length.Min = -1
	for _, a := range answers {
		confSum += a.Confidence
		m.Histogram[domain.ConfidenceBucketOf(a.Confidence)]++

		n := utf8.RuneCountInString(a.Text)
		lenSum += n
		if m.Length.Min < 0 || n < m.Length.Min {
			m.Length.Min = n
		}
		if n > m.Length.Max {
			m.Length.Max = n
		}

		for _, s := range a.Sources {
			if s.DocumentName != "" {
				m.References[s.DocumentName]++
			}
		}
	}

	m.MeanConfidence = confSum / float64(len(answers))
	m.Length.Mean = float64(lenSum) / float64(len(answers))
	return m
}

func documentUtilization(answers []domain.Answer) []domain.DocumentUtilization {
	counts := make(map[string]int)
	for _, a := range answers {
		cited := make(map[string]bool)
		for _, s := range a.Sources {
			if s.DocumentName != "" && !cited[s.DocumentName] {
				cited[s.DocumentName] = true
				counts[s.DocumentName]++
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	most := 0
	for _, c := range counts {
		most = max(most, c)
	}

	out := make([]domain.DocumentUtilization, 0, len(counts))
	for name, c := range counts {
		out = append(out, domain.DocumentUtilization{
			DocumentName: name,
			Citations:    c,
			Score:        float64(c) / float64(most),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Citations != out[j].Citations {
			return out[i].Citations > out[j].Citations
		}
		return out[i].DocumentName < out[j].DocumentName
	})
	return out
}
