// Package orchestrator implements the Query Orchestrator spec.md §4.5
// describes: the six-stage pipeline (classify, retrieve, extract, validate,
// persist, compose) that turns a free-text question and a user context into
// an Answer. It is grounded on the teacher's
// pkg/core/pipeline/orchestrator.go's RunForCompany: a fixed sequence of
// named stages, each logged, each degrading to a warning rather than
// aborting the call where spec.md allows it, wired together from
// already-built collaborators (classifier, retriever, fact store,
// derivation engine, guardrails) rather than owning any of that logic
// itself.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"finintel/internal/mdvalidate"
	"finintel/internal/obslog"
	"finintel/pkg/access"
	"finintel/pkg/domain"
	"finintel/pkg/factstore"
	"finintel/pkg/llm"
	"finintel/pkg/normalize"
	"finintel/pkg/ontology"
	"finintel/pkg/retrieve"
)

// Orchestrator wires the six stages together. It holds no state of its
// own beyond its collaborators; a single instance is shared across
// concurrent answer calls the way the teacher's PipelineOrchestrator is
// shared across concurrent RunForCompany calls.
type Orchestrator struct {
	classifier *Classifier
	retriever  *retrieve.Retriever
	facts      factstore.FactStore
	derivation *factstore.DerivationEngine
	guardrails *factstore.GuardrailSet
	ontology   *ontology.Ontology
	llm        *llm.Manager
	logger     *obslog.Logger
	topK       int
}

// Config collects an Orchestrator's dependencies. Guardrails and the LLM
// manager may be nil: a missing guardrail set simply skips stage 4's
// validation (producing no quality flags), and a nil manager falls back to
// a deterministic, templated composition at stage 6 rather than an
// LLM-authored one.
type Config struct {
	Classifier *Classifier
	Retriever  *retrieve.Retriever
	Facts      factstore.FactStore
	Derivation *factstore.DerivationEngine
	Guardrails *factstore.GuardrailSet
	Ontology   *ontology.Ontology
	LLM        *llm.Manager
	Logger     *obslog.Logger
	TopK       int // chunks requested from Retrieve; spec.md default 10
}

func New(cfg Config) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		retriever:  cfg.Retriever,
		facts:      cfg.Facts,
		derivation: cfg.Derivation,
		guardrails: cfg.Guardrails,
		ontology:   cfg.Ontology,
		llm:        cfg.LLM,
		logger:     cfg.Logger,
		topK:       cfg.TopK,
	}
}

// Answer implements spec.md §4.5's contract: answer(question, user_ctx,
// options) → Answer{text, citations[], metrics[], warnings[],
// processing_stats}. The only error it returns is a cancellation/timeout
// observed between stages; every other failure mode (no retrieval index,
// no extractable fact, a failed persist, a tripped guardrail) is absorbed
// into Warnings and the call still returns an Answer.
func (o *Orchestrator) Answer(ctx context.Context, question string, userCtx domain.UserContext, options domain.AnswerOptions) (domain.Answer, error) {
	started := time.Now()
	log := o.logger
	if log != nil {
		log = log.WithTenant(userCtx.TenantID).WithStage("orchestrator")
	}

	var warnings []string

	// Stage 1: classify.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	classification := o.classifier.Classify(ctx, question)
	if log != nil {
		log.Info(fmt.Sprintf("classified question as %s (%d metric hints)", classification.Kind, len(classification.MetricIDs)))
	}

	// Stage 2: retrieve.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	retrieval := o.retrieve(ctx, question, userCtx, classification)
	warnings = append(warnings, retrieval.Warnings...)

	// Stage 3: extract.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	extracted, extractWarnings := o.extract(ctx, userCtx, options, classification, retrieval.Chunks)
	warnings = append(warnings, extractWarnings...)

	// Stage 4: validate.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	validated, validateWarnings := o.validate(userCtx, options, extracted)
	warnings = append(warnings, validateWarnings...)

	// Stage 5: persist.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	persisted := o.persist(ctx, validated)
	if log != nil && persisted < len(validated) {
		log.Warn(fmt.Sprintf("persisted %d/%d extracted facts", persisted, len(validated)))
	}

	// Stage 6: compose.
	if err := checkCancellation(ctx); err != nil {
		return domain.Answer{}, err
	}
	filtered := access.Filter(factsOf(validated), userCtx)
	text, citations := o.compose(ctx, question, classification, filtered)

	answer := domain.Answer{
		Text:      text,
		Citations: citations,
		Metrics:   factsOf(validated),
		Warnings:  warnings,
		ProcessingStats: domain.ProcessingStats{
			Kind:            classification.Kind,
			ChunksRetrieved: len(retrieval.Chunks),
			FactsExtracted:  len(extracted),
			FactsPersisted:  persisted,
			Duration:        time.Since(started),
		},
	}
	return answer, nil
}

// retrieve runs stage 2, seeding retrieve.Filters with whatever stage 1
// resolved. spec.md §4.3 already handles a nil index or failed embedding
// call by degrading and reporting it in Result.Warnings, so this stage
// never needs its own fallback.
func (o *Orchestrator) retrieve(ctx context.Context, question string, userCtx domain.UserContext, cls Classification) retrieve.Result {
	filters := retrieve.Filters{}
	if cls.Period != nil {
		period := cls.Period.String()
		filters.Period = &period
	}
	if len(cls.MetricIDs) == 1 {
		metricID := cls.MetricIDs[0]
		filters.MetricID = &metricID
	}
	return o.retriever.Retrieve(ctx, question, userCtx.TenantID, o.topK, filters)
}

// extract implements stage 3. It prefers an authoritative fact already in
// the fact store for every metric hint stage 1 surfaced; any metric hint
// not already on record is extracted on the fly from the retrieved chunks'
// text, the way pkg/ingest's findLabelNearNumberCandidates pulls a
// label/value pair out of narrative text, so a question about a figure not
// yet ingested as a structured fact can still be answered from the
// document body.
func (o *Orchestrator) extract(ctx context.Context, userCtx domain.UserContext, options domain.AnswerOptions, cls Classification, chunks []domain.ScoredChunk) ([]domain.Fact, []string) {
	var warnings []string
	var entityID string
	if options.EntityID != nil {
		entityID = *options.EntityID
	}

	var facts []domain.Fact
	have := make(map[string]struct{})

	for _, metricID := range cls.MetricIDs {
		predicate := factstore.Predicate{TenantID: userCtx.TenantID, MetricID: &metricID}
		if entityID != "" {
			predicate.EntityID = &entityID
		}
		if cls.Period != nil {
			predicate.PeriodKey = cls.Period
		}
		rows, err := o.facts.QueryFacts(ctx, predicate)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("fact store query for %s failed: %v", metricID, err))
			continue
		}
		if len(rows) > 0 {
			facts = append(facts, rows...)
			have[metricID] = struct{}{}
		}
	}

	pending := cls.MetricIDs
	if len(pending) == 0 {
		pending = nil // narrative/hybrid questions with no metric hint extract nothing structured; compose stage falls back to chunk text only
	}
	for _, metricID := range pending {
		if _, ok := have[metricID]; ok {
			continue
		}
		fact, ok := o.extractFromChunks(metricID, entityID, userCtx.TenantID, cls.Period, chunks)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no fact found for metric %s in retrieved context", metricID))
			continue
		}
		facts = append(facts, fact)
	}
	return facts, warnings
}

// labelValueRe recognizes the narrative "Label: value" / "Label value"
// shape pkg/ingest/pdf.go's findLabelNearNumberCandidates already detects
// at ingest time; extract reruns the same pattern over retrieval-time
// chunk text since a chunk may carry a figure the ingest pipeline never
// promoted to a structured fact (a table cell skipped, a narrative aside).
var labelValueRe = regexp.MustCompile(`([A-Za-zÀ-ÖØ-öø-ÿ][A-Za-zÀ-ÖØ-öø-ÿ\s/,'&().-]{2,80}?)[:\s]+([-(]?\s?[\d][\d.,\s]*\)?%?)`)

func (o *Orchestrator) extractFromChunks(metricID, entityID, tenantID string, period *domain.PeriodKey, chunks []domain.ScoredChunk) (domain.Fact, bool) {
	metric, ok := o.ontology.Metric(metricID)
	if !ok {
		return domain.Fact{}, false
	}

	for _, sc := range chunks {
		for _, m := range labelValueRe.FindAllStringSubmatch(sc.Chunk.Text, -1) {
			label := strings.TrimSpace(m[1])
			match, ok := o.ontology.Map(label, string(metric.Domain))
			if !ok || match.MetricID != metricID {
				continue
			}
			parsed, err := normalize.Number(m[2], normalize.LocaleAuto, 1, "")
			if err != nil {
				continue
			}
			value := parsed.Value
			if parsed.IsNegative {
				value = -value
			}

			periodKey := domain.PeriodKey{Type: domain.PeriodFY}
			if period != nil {
				periodKey = *period
			}
			return domain.Fact{
				TenantID:            tenantID,
				EntityID:            entityID,
				DocumentID:          sc.Chunk.DocumentID,
				MetricID:            metricID,
				Value:               value,
				Unit:                metric.UnitKind,
				PeriodKey:           periodKey,
				Scenario:            domain.ScenarioActual,
				Perimeter:           domain.PerimeterUnspecified,
				SourceRef:           sc.Chunk.SourceRef,
				ClassificationLevel: sc.Chunk.ClassificationLevel,
			}, true
		}
	}
	return domain.Fact{}, false
}

// validatedFact wraps a fact that has passed stage 4; the quality flags
// stage 4 attached live in fact.QualityFlags. persist writes a fact even
// when it carries error-severity flags (spec.md §9 prefers a flagged fact
// over a silently dropped one).
type validatedFact struct {
	fact domain.Fact
}

func factsOf(vs []validatedFact) []domain.Fact {
	out := make([]domain.Fact, len(vs))
	for i, v := range vs {
		out[i] = v.fact
	}
	return out
}

// validate implements stage 4: guardrail evaluation over the newly
// extracted facts, plus an attempt to (re)compute any derived metric whose
// inputs are now all present. Both run best-effort; neither failing keeps
// the already-extracted facts from reaching persist/compose.
func (o *Orchestrator) validate(userCtx domain.UserContext, options domain.AnswerOptions, extracted []domain.Fact) ([]validatedFact, []string) {
	var warnings []string
	if len(extracted) == 0 {
		return nil, nil
	}

	byMetric := make(map[string]domain.Fact, len(extracted))
	for _, f := range extracted {
		byMetric[f.MetricID] = f
	}

	if o.guardrails != nil {
		flagsByMetric := o.guardrails.Evaluate(byMetric)
		for metricID, flags := range flagsByMetric {
			f := byMetric[metricID]
			f.QualityFlags = append(f.QualityFlags, flags...)
			byMetric[metricID] = f
			for _, flag := range flags {
				if flag.Severity == "error" {
					warnings = append(warnings, fmt.Sprintf("guardrail %s failed for %s: %s", flag.RuleID, metricID, flag.Message))
				}
			}
		}
	}

	if o.derivation != nil {
		var entityID string
		if options.EntityID != nil {
			entityID = *options.EntityID
		}
		for _, f := range extracted {
			derived := o.derivation.Recompute(userCtx.TenantID, entityID, f.PeriodKey, f.Scenario, f.Perimeter, byMetric)
			for _, d := range derived {
				if _, exists := byMetric[d.MetricID]; !exists {
					byMetric[d.MetricID] = d
				}
			}
			break // inputs shared across all extracted facts' coordinates; one pass suffices
		}
	}

	out := make([]validatedFact, 0, len(byMetric))
	for _, f := range byMetric {
		out = append(out, validatedFact{fact: f})
	}
	return out, warnings
}

// persist implements stage 5: best-effort writes, never failing the
// overall answer. spec.md §4.5 treats persistence of freshly extracted
// facts as a courtesy (so a later question benefits from the same
// extraction) rather than a requirement of answering this one.
func (o *Orchestrator) persist(ctx context.Context, facts []validatedFact) int {
	persisted := 0
	for _, vf := range facts {
		if vf.fact.DocumentID == "" && vf.fact.Formula == "" {
			continue // nothing to cite back to; skip rather than write an unprovenanced row
		}
		if _, err := o.facts.UpsertFact(ctx, vf.fact); err == nil {
			persisted++
		} else if o.logger != nil {
			o.logger.Warn(fmt.Sprintf("persist failed for %s: %v", vf.fact.MetricID, err))
		}
	}
	return persisted
}

// compose implements stage 6. With a configured provider it asks the
// "compose" stage's LLM to phrase the answer over the already-filtered
// facts and chunk text; without one (or on failure) it falls back to a
// deterministic templated rendering, so an answer is always produced.
func (o *Orchestrator) compose(ctx context.Context, question string, cls Classification, filtered []access.FilteredFact) (string, []domain.Citation) {
	citations := make([]domain.Citation, 0, len(filtered))
	for _, ff := range filtered {
		citations = append(citations, domain.Citation{
			MetricID:  ff.Fact.MetricID,
			Value:     ff.Fact.Value,
			SourceRef: ff.Fact.SourceRef.String(),
			Masked:    ff.Masked,
		})
	}

	if len(filtered) == 0 {
		return "No figures matching this question were found in the accessible document set.", citations
	}

	provider := o.llmForCompose()
	if provider != nil {
		if text, err := o.composeWithProvider(ctx, provider, question, filtered); err == nil {
			return text, citations
		} else if o.logger != nil {
			o.logger.Warn(fmt.Sprintf("compose provider call failed, falling back to templated answer: %v", err))
		}
	}

	var b strings.Builder
	for i, ff := range filtered {
		if i > 0 {
			b.WriteString(" ")
		}
		if ff.Masked {
			fmt.Fprintf(&b, "%s for %s is restricted for your role.", ff.Fact.MetricID, ff.Fact.PeriodKey)
			continue
		}
		fmt.Fprintf(&b, "%s for %s is %s.", ff.Fact.MetricID, ff.Fact.PeriodKey, normalize.Render(ff.Fact.Value))
	}
	return b.String(), citations
}

func (o *Orchestrator) llmForCompose() llm.Provider {
	if o.llm == nil {
		return nil
	}
	return o.llm.ForStage("compose")
}

func (o *Orchestrator) composeWithProvider(ctx context.Context, provider llm.Provider, question string, filtered []access.FilteredFact) (string, error) {
	var facts strings.Builder
	for _, ff := range filtered {
		if ff.Masked {
			fmt.Fprintf(&facts, "- %s: restricted\n", ff.Fact.MetricID)
			continue
		}
		fmt.Fprintf(&facts, "- %s (%s, %s): %s\n", ff.Fact.MetricID, ff.Fact.PeriodKey, ff.Fact.Scenario, normalize.Render(ff.Fact.Value))
	}
	const systemPrompt = `You answer financial questions using only the facts listed below. Cite each figure exactly as given. Never invent a number not present in the list.`
	prompt := fmt.Sprintf("Question: %s\n\nFacts:\n%s", question, facts.String())
	resp, err := provider.GenerateResponse(ctx, prompt, systemPrompt, nil)
	if err != nil {
		return "", err
	}
	return mdvalidate.Clean(resp), nil
}
