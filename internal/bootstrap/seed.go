// Package bootstrap loads reference data (templates and role memberships)
// into a fresh or existing database. Seeding is idempotent: templates already
// present are left untouched and memberships are inserted only if missing.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
)

// SeedFile is the YAML document accepted by the seeder
type SeedFile struct {
	Roles     []entity.RoleMember `yaml:"roles"`
	Templates []TemplateSeed      `yaml:"templates"`
}

// TemplateSeed describes one template. Active defaults to true.
type TemplateSeed struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Active *bool      `yaml:"active"`
	Steps  []StepSeed `yaml:"steps"`
}

// StepSeed describes one step. Order defaults to the step's 1-based position.
type StepSeed struct {
	ID                string   `yaml:"id"`
	Order             int      `yaml:"order"`
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	Policy            string   `yaml:"policy"`
	RequiredApprovals int      `yaml:"required_approvals"`
	SLAHours          int      `yaml:"sla_hours"`
	Approvers         []string `yaml:"approvers"`
	Roles             []string `yaml:"roles"`
}

// Result counts what a seeding run changed
type Result struct {
	TemplatesCreated int
	TemplatesSkipped int
	RolesAdded       int
}

// Seeder writes seed data through the repositories
type Seeder struct {
	templates port.TemplateRepository
	roles     port.RoleRepository
	txManager port.TransactionManager
	logger    *zap.Logger
	now       func() time.Time
}

// NewSeeder creates a new seeder
func NewSeeder(templates port.TemplateRepository, roles port.RoleRepository, txManager port.TransactionManager, logger *zap.Logger) *Seeder {
	return &Seeder{
		templates: templates,
		roles:     roles,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// LoadFile parses a seed file from disk
func LoadFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a seed document
func Parse(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply writes the seed in a single transaction
func (s *Seeder) Apply(ctx context.Context, seed *SeedFile) (*Result, error) {
	templates := make([]*entity.WorkflowTemplate, 0, len(seed.Templates))
	for i := range seed.Templates {
		tpl, err := s.buildTemplate(&seed.Templates[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	for _, m := range seed.Roles {
		if m.RoleName == "" || m.UserID == "" {
			return nil, fmt.Errorf("role membership needs both role and user, got %q/%q", m.RoleName, m.UserID)
		}
	}

	result := &Result{}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		for _, m := range seed.Roles {
			before, err := s.roles.CurrentRoleHolders(ctx, m.RoleName)
			if err != nil {
				return err
			}
			if contains(before, m.UserID) {
				continue
			}
			if err := s.roles.AddMember(ctx, m.RoleName, m.UserID); err != nil {
				return err
			}
			result.RolesAdded++
		}

		for _, tpl := range templates {
			existing, err := s.templates.GetByID(ctx, tpl.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				s.logger.Info("Template already present, skipping", zap.String("template_id", tpl.ID))
				result.TemplatesSkipped++
				continue
			}
			if err := s.templates.Create(ctx, tpl); err != nil {
				return err
			}
			result.TemplatesCreated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}

	s.logger.Info("Seed applied",
		zap.Int("templates_created", result.TemplatesCreated),
		zap.Int("templates_skipped", result.TemplatesSkipped),
		zap.Int("roles_added", result.RolesAdded))
	return result, nil
}

func (s *Seeder) buildTemplate(ts *TemplateSeed) (*entity.WorkflowTemplate, error) {
	if ts.ID == "" {
		return nil, fmt.Errorf("template id is required")
	}
	if len(ts.Steps) == 0 {
		return nil, fmt.Errorf("template %s has no steps", ts.ID)
	}

	tpl := &entity.WorkflowTemplate{
		ID:        ts.ID,
		Name:      ts.Name,
		IsActive:  ts.Active == nil || *ts.Active,
		CreatedAt: s.now(),
	}
	if tpl.Name == "" {
		tpl.Name = ts.ID
	}

	for i, ss := range ts.Steps {
		order := ss.Order
		if order == 0 {
			order = i + 1
		}
		p := policy.Policy(strings.ToUpper(ss.Policy))
		if !p.IsValid() {
			return nil, fmt.Errorf("template %s step %d: unknown policy %q", ts.ID, order, ss.Policy)
		}
		stepType := strings.ToUpper(ss.Type)
		if stepType == "" {
			stepType = entity.StepTypeApproval
		}
		id := ss.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", ts.ID, order)
		}

		tpl.Steps = append(tpl.Steps, &entity.WorkflowStep{
			ID:                id,
			TemplateID:        ts.ID,
			StepOrder:         order,
			Name:              ss.Name,
			StepType:          stepType,
			ApprovalPolicy:    p,
			RequiredApprovals: ss.RequiredApprovals,
			SLAHours:          ss.SLAHours,
			Approvers:         ss.Approvers,
			Roles:             ss.Roles,
		})
	}
	return tpl, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
