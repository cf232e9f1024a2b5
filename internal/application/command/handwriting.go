package command

import (
	"context"
	"fmt"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// HandwritingIntake stores and analyzes stage 1 handwriting samples.
type HandwritingIntake struct {
	deps       Deps
	analyzer   port.Analyzer
	files      port.FileStore
	normalizer port.ImageNormalizer
}

func NewHandwritingIntake(deps Deps, analyzer port.Analyzer, files port.FileStore, normalizer port.ImageNormalizer) *HandwritingIntake {
	return &HandwritingIntake{
		deps:       deps.withDefaults(),
		analyzer:   analyzer,
		files:      files,
		normalizer: normalizer,
	}
}

// ObjectKey is the storage key of a normalized sample.
func ObjectKey(caseID, id string, day string) string {
	return fmt.Sprintf("handwriting/%s/%s-%s.png", caseID, day, id)
}

// AnalyzeHandwriting normalizes the image, stores it, runs the analyzer and
// persists the result. The external calls happen outside the transaction.
func (h *HandwritingIntake) AnalyzeHandwriting(ctx context.Context, caseID string, actor shared.Actor, image []byte) (res *assessment.HandwritingAnalysis, err error) {
	const op = "AnalyzeHandwriting"
	started := h.deps.now()
	ctx, span := h.deps.span(ctx, op, caseID, actor)
	defer func() { h.deps.end(span, op, caseID, actor, started, err) }()

	if len(image) == 0 {
		return nil, shared.NewDomainError("handwriting", op, shared.ErrInvalidInput, "image is empty")
	}

	s, err := loadScope(ctx, h.deps.UoW.Repositories(), caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.roster.AuthorizeOwner(actor); err != nil {
		return nil, err
	}
	if err := s.progress.RequireStage(op, workflow.StageHandwriting); err != nil {
		return nil, err
	}

	png, err := h.normalizer.Normalize(image)
	if err != nil {
		return nil, shared.WrapError("handwriting", op, shared.ErrInvalidInput, "image could not be decoded", err)
	}

	now := h.deps.now()
	id := h.deps.NewID()
	url, err := h.files.Upload(ctx, ObjectKey(caseID, id, now.Format("20060102")), "image/png", png)
	if err != nil {
		return nil, shared.WrapError("handwriting", op, shared.ErrInternal, shared.ErrUploadFailed.Message, err)
	}

	result, err := h.analyzer.AnalyzeImage(ctx, png)
	if err != nil {
		return nil, shared.WrapError("handwriting", op, shared.ErrInternal, shared.ErrAnalyzerUnavailable.Message, err)
	}

	res = &assessment.HandwritingAnalysis{
		ID:           id,
		CaseID:       caseID,
		ImageURL:     url,
		Score:        result.Score,
		Label:        result.Label,
		LetterCounts: result.LetterCounts,
		AnalyzedBy:   actor.UserID,
		CreatedAt:    now,
	}
	err = h.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.Handwriting.Create(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	h.deps.publish(ctx, shared.HandwritingAnalyzedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventHandwritingStored, caseID, actor),
		Score:     res.Score,
	})
	return res, nil
}

// ListAnalyses returns the analyses of a case to any attached actor.
func (h *HandwritingIntake) ListAnalyses(ctx context.Context, caseID string, actor shared.Actor) ([]*assessment.HandwritingAnalysis, error) {
	repos := h.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("ListAnalyses", actor, nil); err != nil {
		return nil, err
	}
	return repos.Handwriting.ListByCase(ctx, caseID)
}
