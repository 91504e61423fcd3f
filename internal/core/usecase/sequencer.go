package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/similarity"
)

type SequenceRequest struct {
	DocumentText string
	AlreadyKnown []string
	Cursor       int
	// OnTransient is called for every transient failure seen while classifying.
	OnTransient func(err error)
}

type SequenceResult struct {
	NewFindings  []domain.Finding
	CategoryName string
	Summary      string
	HasMore      bool
	NextCursor   int
	Calls        int
	Dropped      int
}

// CategorySequencer drives one risk category at a time through the classifier.
// It never loops on its own: the caller publishes each result before asking for the next.
type CategorySequencer struct {
	catalog    []domain.Category
	classifier ports.RiskClassifier
	executor   ports.CallExecutor
	classify   func(error) domain.ErrorClass
	newID      func() string
}

func NewCategorySequencer(
	catalog []domain.Category,
	classifier ports.RiskClassifier,
	executor ports.CallExecutor,
	classify func(error) domain.ErrorClass,
) *CategorySequencer {
	return &CategorySequencer{
		catalog:    append([]domain.Category(nil), catalog...),
		classifier: classifier,
		executor:   executor,
		classify:   classify,
		newID:      uuid.NewString,
	}
}

func (s *CategorySequencer) Len() int {
	return len(s.catalog)
}

func (s *CategorySequencer) Catalog() []domain.Category {
	return append([]domain.Category(nil), s.catalog...)
}

func (s *CategorySequencer) RunNextCategory(ctx context.Context, req SequenceRequest) (SequenceResult, error) {
	if req.Cursor < 0 {
		return SequenceResult{}, domain.WrapError(domain.ErrInvalidInput, "run next category", fmt.Errorf("negative cursor %d", req.Cursor))
	}
	if req.Cursor >= len(s.catalog) {
		return SequenceResult{HasMore: false, NextCursor: req.Cursor}, nil
	}

	category := s.catalog[req.Cursor]
	classify := s.classifyWithHook(req.OnTransient)

	var result domain.CategoryResult
	calls := 0
	err := s.executor.Execute(ctx, "classify."+category.Name, func(callCtx context.Context) error {
		calls++
		res, err := s.classifier.ClassifyCategory(callCtx, req.DocumentText, category, req.AlreadyKnown)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, classify)
	if err != nil {
		class := s.classify(err)
		seqErr := &domain.SequenceError{
			Class:        class,
			Resumable:    true,
			Category:     category.Name,
			Cursor:       req.Cursor,
			DocumentText: req.DocumentText,
			AlreadyKnown: append([]string(nil), req.AlreadyKnown...),
			Err:          err,
		}
		failed := SequenceResult{
			CategoryName: category.Name,
			HasMore:      true,
			NextCursor:   req.Cursor,
			Calls:        calls,
		}
		return failed, seqErr
	}

	survivors, dropped := s.dedup(result.Findings, req.AlreadyKnown, category)
	next := req.Cursor + 1
	return SequenceResult{
		NewFindings:  survivors,
		CategoryName: category.Name,
		Summary:      strings.TrimSpace(result.Summary),
		HasMore:      next < len(s.catalog),
		NextCursor:   next,
		Calls:        calls,
		Dropped:      dropped,
	}, nil
}

func (s *CategorySequencer) classifyWithHook(hook func(error)) func(error) domain.ErrorClass {
	if hook == nil {
		return s.classify
	}
	return func(err error) domain.ErrorClass {
		class := s.classify(err)
		if class == domain.ErrorClassTransient {
			hook(err)
		}
		return class
	}
}

// dedup drops findings whose span is too similar to a known text or to an earlier
// survivor of the same batch, and stamps the survivors with ids and category.
func (s *CategorySequencer) dedup(raw []domain.Finding, alreadyKnown []string, category domain.Category) ([]domain.Finding, int) {
	known := append([]string(nil), alreadyKnown...)
	out := make([]domain.Finding, 0, len(raw))
	dropped := 0

	for _, f := range raw {
		f.Title = strings.TrimSpace(f.Title)
		f.SourceSpan = strings.TrimSpace(f.SourceSpan)
		if f.Title == "" && f.SourceSpan == "" {
			dropped++
			continue
		}
		if similarity.IsDuplicate(f.SourceSpan, known) {
			dropped++
			continue
		}
		known = append(known, f.SourceSpan)

		f.ID = s.newID()
		f.Category = category.Name
		f.Severity = domain.ParseSeverity(string(f.Severity))
		f.Location = strings.TrimSpace(f.Location)
		f.Elaboration = nil
		f.Analyzing = false
		f.ElaborationComplete = false
		out = append(out, f)
	}
	return out, dropped
}
