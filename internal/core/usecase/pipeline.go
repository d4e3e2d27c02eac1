package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
)

type pipelineState string

const (
	stateNormalizing pipelineState = "normalizing"
	stateRetrieving  pipelineState = "retrieving"
	stateFusing      pipelineState = "fusing"
	stateAssembling  pipelineState = "assembling_context"
	stateGenerating  pipelineState = "generating"
)

// PipelineOptions carries the tunables of one pipeline instance. Zero
// values fall back to working defaults.
type PipelineOptions struct {
	RetrieveK      int
	FinalK         int
	Weights        FusionWeights
	RequestTimeout time.Duration
}

func (o PipelineOptions) normalize() PipelineOptions {
	out := o
	if out.RetrieveK <= 0 {
		out.RetrieveK = 30
	}
	if out.FinalK <= 0 {
		out.FinalK = 10
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 25 * time.Second
	}
	return out
}

// Pipeline sequences one request through normalization, concurrent dense
// and sparse retrieval, fusion, context assembly and generation. Instances
// share only the read-only retriever index handles; everything else is
// per-request state.
type Pipeline struct {
	normalizer *Normalizer
	dense      ports.DenseRetriever
	sparse     ports.SparseRetriever
	assembler  *Assembler
	driver     *GenerationDriver
	audit      ports.AuditPublisher

	opts PipelineOptions
}

func NewPipeline(
	normalizer *Normalizer,
	dense ports.DenseRetriever,
	sparse ports.SparseRetriever,
	assembler *Assembler,
	driver *GenerationDriver,
	audit ports.AuditPublisher,
	opts PipelineOptions,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		dense:      dense,
		sparse:     sparse,
		assembler:  assembler,
		driver:     driver,
		audit:      audit,
		opts:       opts.normalize(),
	}
}

func (p *Pipeline) Answer(ctx context.Context, req ports.AssistRequest) (*domain.PipelineOutcome, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	outcome := &domain.PipelineOutcome{
		RequestID: req.RequestID,
		Status:    domain.PipelineFailed,
	}
	defer func() {
		outcome.Elapsed = time.Since(start)
		p.publishAudit(outcome)
	}()

	record := func(stage pipelineState, status domain.StageStatus, err error, elapsed time.Duration) {
		diag := domain.StageDiagnostic{
			Stage:   string(stage),
			Status:  status,
			Elapsed: elapsed,
		}
		if err != nil {
			diag.Error = err.Error()
		}
		outcome.Diagnostics = append(outcome.Diagnostics, diag)
	}

	abort := func(stage pipelineState, err error, elapsed time.Duration) (*domain.PipelineOutcome, error) {
		record(stage, domain.StageFailed, err, elapsed)
		return outcome, err
	}

	// Normalizing.
	stageStart := time.Now()
	query, err := p.normalizer.Normalize(ctx, req.RawText, req.OCRText)
	if err != nil {
		return abort(stateNormalizing, deadlineOr(ctx, err), time.Since(stageStart))
	}
	normStatus := domain.StageOK
	if query.DenseDisabled {
		normStatus = domain.StageDegraded
	}
	record(stateNormalizing, normStatus, nil, time.Since(stageStart))

	if err := deadlineCheck(ctx); err != nil {
		return abort(stateRetrieving, err, 0)
	}

	// Retrieving: dense and sparse run concurrently and join before fusing.
	// A failed retriever degrades to an empty contribution.
	stageStart = time.Now()
	dense, sparse, retrieverErrs := p.retrieveBoth(ctx, query)
	retrieveStatus := domain.StageOK
	var retrieveErr error
	if len(retrieverErrs) > 0 {
		retrieveStatus = domain.StageDegraded
		retrieveErr = errors.Join(retrieverErrs...)
		slog.Warn("retriever_degraded",
			"request_id", req.RequestID,
			"failed_retrievers", len(retrieverErrs),
			"error", retrieveErr,
		)
	}
	record(stateRetrieving, retrieveStatus, retrieveErr, time.Since(stageStart))

	if err := deadlineCheck(ctx); err != nil {
		return abort(stateFusing, err, 0)
	}

	// Fusing.
	stageStart = time.Now()
	fused := FuseRRF(dense, sparse, p.opts.Weights, p.opts.FinalK)
	record(stateFusing, domain.StageOK, nil, time.Since(stageStart))

	if len(fused) == 0 {
		// A legitimate empty result; flagged partial only when retriever
		// errors, not genuine absence of matches, caused it.
		if len(retrieverErrs) > 0 {
			outcome.Status = domain.PipelinePartial
		} else {
			outcome.Status = domain.PipelineSucceeded
		}
		record(stateAssembling, domain.StageSkipped, nil, 0)
		record(stateGenerating, domain.StageSkipped, nil, 0)
		return outcome, nil
	}

	if err := deadlineCheck(ctx); err != nil {
		return abort(stateAssembling, err, 0)
	}

	// Assembling context.
	stageStart = time.Now()
	bundle := p.assembler.Assemble(query, fused)
	outcome.Bundle = bundle
	record(stateAssembling, domain.StageOK, nil, time.Since(stageStart))

	if err := deadlineCheck(ctx); err != nil {
		return abort(stateGenerating, err, 0)
	}

	// Generating.
	stageStart = time.Now()
	result, err := p.driver.Generate(ctx, bundle)
	if err != nil {
		return abort(stateGenerating, deadlineOr(ctx, err), time.Since(stageStart))
	}
	record(stateGenerating, domain.StageOK, nil, time.Since(stageStart))

	outcome.Result = result
	if len(retrieverErrs) > 0 || query.DenseDisabled {
		outcome.Status = domain.PipelinePartial
	} else {
		outcome.Status = domain.PipelineSucceeded
	}
	return outcome, nil
}

// retrieveBoth fans out to both retrievers and joins. The group context is
// derived from the request context, so deadline expiry and caller
// cancellation stop both calls; whatever completed is used, failures count
// as empty contributions.
func (p *Pipeline) retrieveBoth(ctx context.Context, query domain.Query) (dense, sparse []domain.PassageRef, errs []error) {
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = p.dense.RetrieveDense(gctx, query, p.opts.RetrieveK)
		if err != nil {
			denseErr = domain.WrapError(domain.ErrRetrieverUnavailable, "dense retrieve", err)
			dense = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sparse, err = p.sparse.RetrieveSparse(gctx, query, p.opts.RetrieveK)
		if err != nil {
			sparseErr = domain.WrapError(domain.ErrRetrieverUnavailable, "sparse retrieve", err)
			sparse = nil
		}
		return nil
	})
	_ = g.Wait()

	if denseErr != nil {
		errs = append(errs, denseErr)
	}
	if sparseErr != nil {
		errs = append(errs, sparseErr)
	}
	return dense, sparse, errs
}

func (p *Pipeline) publishAudit(outcome *domain.PipelineOutcome) {
	if p.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	event := domain.AuditEvent{
		RequestID:   outcome.RequestID,
		Status:      outcome.Status,
		Diagnostics: outcome.Diagnostics,
		ElapsedMS:   float64(outcome.Elapsed.Microseconds()) / 1000.0,
		OccurredAt:  time.Now().UTC(),
	}
	if err := p.audit.PublishOutcome(ctx, event); err != nil {
		slog.Warn("audit_publish_failed", "request_id", outcome.RequestID, "error", err)
	}
}

func deadlineCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return deadlineOr(ctx, err)
	}
	return nil
}

// deadlineOr converts request-context expiry into the typed deadline error
// so the caller can distinguish it from stage-specific failures. Only the
// request context counts: a stage error may carry context.DeadlineExceeded
// from a per-attempt timeout while the request deadline is still live.
func deadlineOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrDeadlineExceeded, "pipeline", context.DeadlineExceeded)
	}
	return err
}
