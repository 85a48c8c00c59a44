package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

func TestValidateStep(t *testing.T) {
	base := func(p policy.Policy, required int, approvers []string, roles []string) *entity.WorkflowStep {
		return &entity.WorkflowStep{
			ID: "s", StepOrder: 2, StepType: entity.StepTypeApproval, ApprovalPolicy: p,
			RequiredApprovals: required, SLAHours: 4, Approvers: approvers, Roles: roles,
		}
	}

	tests := []struct {
		name    string
		step    *entity.WorkflowStep
		wantErr bool
	}{
		{"explicit approvers", base(policy.All, 1, []string{"a", "b"}, nil), false},
		{"roles only", base(policy.AnyOne, 1, nil, []string{"FINANCE"}), false},
		{"quorum met by explicit approvers", base(policy.Quorum, 2, []string{"a", "b"}, nil), false},
		{"quorum counted against roles later", base(policy.Quorum, 5, []string{"a"}, []string{"FINANCE"}), false},
		{"nobody", base(policy.All, 1, nil, nil), true},
		{"blank approver only", base(policy.AnyOne, 1, []string{""}, nil), true},
		{"quorum above distinct approvers", base(policy.Quorum, 3, []string{"a", "b", "b"}, nil), true},
		{"zero quorum", base(policy.Quorum, 0, []string{"a"}, nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStep(tt.step)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainwf.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
