package service

import (
	"errors"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/repository"
)

var ErrThreatModelNotFound = errors.New("threat model not found")

// ValidationReport 文档校验结果
type ValidationReport struct {
	Valid             bool               `json:"valid"`
	Violations        []domain.Violation `json:"violations"`
	DiagramViolations []domain.Violation `json:"diagram_violations,omitempty"`
}

type ThreatModelService struct {
	validator *threatmodel.Validator
	repo      repository.ThreatModelRepository
}

func NewThreatModelService(validator *threatmodel.Validator, repo repository.ThreatModelRepository) *ThreatModelService {
	return &ThreatModelService{validator: validator, repo: repo}
}

// Validate 校验文档；diagram 非空时按 Threagile YAML 解析，并检查组件能否从图中推导
func (s *ThreatModelService) Validate(document, diagram string) (*ValidationReport, error) {
	report := &ValidationReport{Violations: []domain.Violation{}}
	doc, err := s.validator.ValidateText(document)
	var sce *domain.SchemaConformanceError
	if err != nil {
		if !errors.As(err, &sce) {
			return nil, err
		}
		report.Violations = append(report.Violations, sce.Violations...)
	}

	if diagram != "" {
		d, derr := threatmodel.ParseDiagram(diagram)
		if derr != nil {
			return nil, derr
		}
		report.DiagramViolations = d.Validate()
		if doc != nil {
			report.Violations = append(report.Violations, threatmodel.CheckConsistency(doc, d)...)
		}
	}
	report.Valid = len(report.Violations) == 0
	return report, nil
}

func (s *ThreatModelService) Get(id string) (*model.ThreatModel, error) {
	tm, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrThreatModelNotFound
	}
	return tm, err
}

func (s *ThreatModelService) List(repoURL string, limit int) ([]model.ThreatModel, error) {
	return s.repo.ListByRepo(repoURL, limit)
}
