package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// IngestionAgent digests one procurement document.
type IngestionAgent struct {
	exec *Executor[domain.IngestionSummary]
}

// NewIngestionAgent creates an ingestion agent.
func NewIngestionAgent(model driven.ModelClient, opts ...Option) *IngestionAgent {
	a := &IngestionAgent{}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	a.exec = NewExecutor(AgentIngestion, driven.PromptIngestion, ingestionInstruction, model, ingestionProcessor(s), opts...)
	return a
}

// Ingest summarises doc.
func (a *IngestionAgent) Ingest(ctx context.Context, doc *domain.Document, actx Context) (domain.IngestionSummary, error) {
	out, err := a.exec.Execute(ctx, ingestionInput(doc), actx)
	if err != nil {
		return out, err
	}
	out.DocumentID = doc.ID
	return out, nil
}

// IngestStreaming summarises doc, delivering model text to onChunk as it arrives.
func (a *IngestionAgent) IngestStreaming(ctx context.Context, doc *domain.Document, actx Context, onChunk func(string)) (domain.IngestionSummary, error) {
	out, err := a.exec.ExecuteStreaming(ctx, ingestionInput(doc), actx, onChunk)
	if err != nil {
		return out, err
	}
	out.DocumentID = doc.ID
	return out, nil
}

func ingestionInput(doc *domain.Document) string {
	if strings.TrimSpace(doc.Content) == "" {
		return ""
	}
	return fmt.Sprintf("Document: %s\n\n%s", doc.Filename, doc.Content)
}

func ingestionProcessor(s settings) Processor[domain.IngestionSummary] {
	return func(raw string) (domain.IngestionSummary, domain.Provenance) {
		fields, prov, ok := decodeReply(AgentIngestion, raw, s.now)
		if !ok {
			out := ingestionPatterns(raw)
			out.Provenance = patternProvenance(AgentIngestion, s.now())
			return out, out.Provenance
		}

		ensureLists(fields, "key_points", "deadlines", "contacts")
		prov.Warnings = warnMissing(AgentIngestion, fields, "summary", "document_type")

		out := domain.IngestionSummary{
			DocumentType: str(fields, "document_type", "type"),
			Summary:      str(fields, "summary"),
			KeyPoints:    strList(fields, "key_points"),
			Deadlines:    strList(fields, "deadlines"),
			Contacts:     strList(fields, "contacts"),
			Provenance:   prov,
		}
		if out.DocumentType == "" {
			out.DocumentType = "other"
		}
		return out, prov
	}
}

var (
	deadlineHint = regexp.MustCompile(`(?i)\b(deadline|due|no later than|submission date|closing date)\b|\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	contactHint  = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+|\+?\d[\d ()-]{7,}\d`)
)

// ingestionPatterns recovers a summary from an unstructured reply.
func ingestionPatterns(raw string) domain.IngestionSummary {
	out := domain.IngestionSummary{DocumentType: "other"}

	sents := sentences(raw)
	if len(sents) > 3 {
		sents = sents[:3]
	}
	out.Summary = strings.Join(sents, " ")
	out.KeyPoints = bulletLines(raw)

	for _, line := range strings.Split(raw, "\n") {
		line = stripBullet(line)
		if line == "" {
			continue
		}
		if deadlineHint.MatchString(line) {
			out.Deadlines = append(out.Deadlines, line)
		}
		if contactHint.MatchString(line) {
			out.Contacts = append(out.Contacts, line)
		}
	}
	return out
}
