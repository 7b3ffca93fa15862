package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finintel/internal/obslog"
	"finintel/pkg/domain"
	"finintel/pkg/factstore"
	"finintel/pkg/ingest"
	"finintel/pkg/normalize"
	"finintel/pkg/ontology"
	"finintel/pkg/retrieve"
)

type ingestInput struct {
	tenantID       string
	entityID       string
	documentID     string
	uploadedBy     string
	fileBytes      []byte
	fileName       string
	periodKey      domain.PeriodKey
	scenario       domain.Scenario
	perimeter      domain.Perimeter
	localeHint     normalize.Locale
	classification domain.ClassificationLevel

	ontology   *ontology.Ontology
	facts      factstore.FactStore
	derivation *factstore.DerivationEngine
	guardrails *factstore.GuardrailSet
	chunkStore *retrieve.SQLiteChunkStore
	logger     *obslog.Logger
}

type ingestOutput struct {
	factsWritten  int
	chunksWritten int
}

// runIngest is route_and_extract -> map -> normalize -> upsert_fact (spec.md
// §4.1/§4.2/§4.4) applied to one file. Each extracted candidate becomes its
// own fact write, independent of the others: a single unmappable or
// unparseable row degrades that one row to a warning rather than failing
// the whole document, mirroring the orchestrator's own degrade-don't-fail
// posture for retrieval and composition.
func runIngest(in ingestInput) (ingestOutput, error) {
	ctx := context.Background()

	doc := domain.Document{
		DocumentID:          in.documentID,
		FileName:            in.fileName,
		FileHash:            fmt.Sprintf("%x", sha256.Sum256(in.fileBytes)),
		TenantID:            in.tenantID,
		UploadedBy:          in.uploadedBy,
		UploadedAt:          time.Now(),
		ClassificationLevel: in.classification,
		Status:              domain.DocumentExtracting,
	}
	if err := in.chunkStore.UpsertDocument(ctx, doc); err != nil {
		in.logger.Error(err, "failed to record document as extracting")
	}

	router := ingest.NewRouter()
	baseRef := domain.SourceReference{
		FileName:    in.fileName,
		ExtractedAt: time.Now(),
		Confidence:  1.0,
	}
	result, err := router.RouteAndExtract(in.fileBytes, in.fileName, in.documentID, baseRef)
	if err != nil {
		failMsg := err.Error()
		doc.Status = domain.DocumentFailed
		doc.Error = &failMsg
		if upsertErr := in.chunkStore.UpsertDocument(ctx, doc); upsertErr != nil {
			in.logger.Error(upsertErr, "failed to record document as failed")
		}
		return ingestOutput{}, fmt.Errorf("ingest: extraction: %w", err)
	}
	doc.PageCount = countPages(result.Blocks)

	const domainHint = "" // no single dominant domain can be inferred file-wide; Map falls back to its per-row fuzzy match

	extracted := make(map[string]domain.Fact) // metric id -> fact, seeds DerivationEngine.Recompute
	var out ingestOutput

	for _, cand := range result.Candidates {
		match, ok := in.ontology.Map(cand.Label, domainHint)
		if !ok {
			in.logger.Warn(fmt.Sprintf("no ontology mapping for label %q, skipping", cand.Label))
			continue
		}
		metric, ok := in.ontology.Metric(match.MetricID)
		if !ok || metric.IsDerived() {
			continue // derived metrics are never extracted directly
		}

		scaleHint := 1.0
		normalized, err := normalize.Number(cand.RawValue, in.localeHint, scaleHint, "")
		if err != nil {
			in.logger.Warn(fmt.Sprintf("could not normalize value %q for %q: %v", cand.RawValue, cand.Label, err))
			continue
		}

		confidence := cand.SourceRef.Confidence
		if confidence <= 0 {
			confidence = 1.0
		}

		fact := domain.Fact{
			ID:                  uuid.NewString(),
			TenantID:            in.tenantID,
			EntityID:            in.entityID,
			DocumentID:          in.documentID,
			MetricID:            metric.ID,
			Value:               normalized.Value,
			Unit:                metric.UnitKind,
			PeriodKey:           in.periodKey,
			Scenario:            in.scenario,
			Perimeter:           in.perimeter,
			SourceRef:           cand.SourceRef,
			ClassificationLevel: in.classification,
			CreatedAt:           time.Now(),
		}
		if normalized.Currency != "" {
			fact.Currency = &normalized.Currency
		}

		extracted[metric.ID] = fact
	}

	flags := in.guardrails.Evaluate(extracted)
	for metricID, fact := range extracted {
		fact.QualityFlags = flags[metricID]
		if _, err := in.facts.UpsertFact(ctx, fact); err != nil {
			in.logger.Error(err, fmt.Sprintf("failed to persist fact for metric %q", metricID))
			continue
		}
		out.factsWritten++
	}

	derived := in.derivation.Recompute(in.tenantID, in.entityID, in.periodKey, in.scenario, in.perimeter, extracted)
	for _, fact := range derived {
		fact.ID = uuid.NewString()
		fact.DocumentID = in.documentID
		fact.ClassificationLevel = in.classification
		fact.CreatedAt = time.Now()
		if _, err := in.facts.UpsertFact(ctx, fact); err != nil {
			in.logger.Error(err, fmt.Sprintf("failed to persist derived fact for metric %q", fact.MetricID))
			continue
		}
		out.factsWritten++
	}

	chunks := ingest.ChunkParagraphs(result.Blocks, in.documentID)
	chunks = append(chunks, ingest.ChunkTables(result.Blocks, in.documentID)...)
	if err := in.chunkStore.DeleteDocument(ctx, in.documentID); err != nil {
		in.logger.Error(err, "failed to clear stale chunks for re-ingested document")
	}
	for _, chunk := range chunks {
		chunk.TenantID = in.tenantID
		chunk.ClassificationLevel = in.classification
		if err := in.chunkStore.Put(ctx, chunk); err != nil {
			in.logger.Error(err, fmt.Sprintf("failed to persist chunk %s", chunk.ChunkID))
			continue
		}
		out.chunksWritten++
	}

	// spec.md §4.1: the document is ready if at least one block was
	// extracted, failed otherwise — even when every candidate inside those
	// blocks turned out unmappable or unparseable.
	if len(result.Blocks) > 0 {
		doc.Status = domain.DocumentReady
	} else {
		doc.Status = domain.DocumentFailed
		noContent := "no content could be extracted from the document"
		doc.Error = &noContent
	}
	if err := in.chunkStore.UpsertDocument(ctx, doc); err != nil {
		in.logger.Error(err, "failed to record final document status")
	}

	return out, nil
}

// countPages returns the number of distinct pages referenced across blocks,
// or 0 when the format has no page concept (spreadsheets, CSV).
func countPages(blocks []ingest.Block) int {
	seen := make(map[int]struct{})
	for _, b := range blocks {
		if b.SourceRef.Page != nil {
			seen[*b.SourceRef.Page] = struct{}{}
		}
	}
	return len(seen)
}
