package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-player/internal/model"
)

// ErrNotParentOf is returned when a parent asks for a student they are not linked to.
var ErrNotParentOf = errors.New("student is not linked to this parent")

type studentResultLister interface {
	ListByStudent(ctx context.Context, studentID int) ([]model.TestResult, error)
}

type parentLinker interface {
	IsParentOf(ctx context.Context, parentID, studentID int) (bool, error)
}

// ResultService exposes graded results to students and their parents.
type ResultService struct {
	results studentResultLister
	links   parentLinker
}

// NewResultService creates a new ResultService.
func NewResultService(results studentResultLister, links parentLinker) *ResultService {
	return &ResultService{results: results, links: links}
}

// ListForStudent returns a student's results, newest first.
func (s *ResultService) ListForStudent(ctx context.Context, studentID int) ([]model.TestResult, error) {
	results, err := s.results.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.TestResult{}
	}
	return results, nil
}

// ListForChild returns a student's results after checking the parent link.
func (s *ResultService) ListForChild(ctx context.Context, parentID, studentID int) ([]model.TestResult, error) {
	linked, err := s.links.IsParentOf(ctx, parentID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check parent link: %w", err)
	}
	if !linked {
		return nil, ErrNotParentOf
	}
	return s.ListForStudent(ctx, studentID)
}
