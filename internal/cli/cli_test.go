package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

const cliSeed = `
roles:
  - role: ESCALATION_MANAGER
    user: boss
templates:
  - id: expense
    name: Expense report
    steps:
      - name: Manager
        policy: ANY_ONE
        sla_hours: 24
        approvers: [mgr]
`

type cliEnv struct {
	configPath string
	seedPath   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	color.NoColor = true

	dir := t.TempDir()
	env := &cliEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		seedPath:   filepath.Join(dir, "seed.yaml"),
	}

	config := fmt.Sprintf("database:\n  path: %s\nmetrics:\n  enabled: false\n", filepath.Join(dir, "approval.db"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0o644))
	require.NoError(t, os.WriteFile(env.seedPath, []byte(cliSeed), 0o644))
	return env
}

// exec runs one approvalctl invocation and returns stdout, stderr and the exit code
func (e *cliEnv) exec(args ...string) (string, string, int) {
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	code := run(root, append([]string{"--config", e.configPath, "--log-level", "error"}, args...), &stderr)
	return stdout.String(), stderr.String(), code
}

func (e *cliEnv) mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := e.exec(args...)
	require.Equal(t, 0, code, "args %v failed: %s", args, errOut)
	return out
}

func TestCLI_MigrateSeedAndDecide(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustExec(t, "migrate", "up")
	assert.Contains(t, out, "schema version 1")

	out = env.mustExec(t, "seed", "-f", env.seedPath)
	assert.Contains(t, out, "templates created: 1")

	out = env.mustExec(t, "seed", "-f", env.seedPath)
	assert.Contains(t, out, "templates created: 0")
	assert.Contains(t, out, "templates skipped: 1")

	out = env.mustExec(t, "--json", "instance", "create", "--template", "expense", "--doc", "doc-1", "--as", "ivy")
	var inst entity.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(out), &inst))
	assert.Equal(t, entity.InstanceStatusInProgress, inst.Status)

	out = env.mustExec(t, "--json", "tasks", "list", "--assignee", "mgr", "--status", entity.TaskStatusPending)
	var tasks []*entity.ApprovalTask
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)

	out = env.mustExec(t, "tasks", "act", tasks[0].ID, "--as", "mgr", "--action", entity.ActionApprove)
	assert.Contains(t, out, "step verdict: APPROVED")
	assert.Contains(t, out, entity.InstanceStatusApproved)

	out = env.mustExec(t, "instance", "show", inst.ID)
	assert.Contains(t, out, "Instance "+inst.ID)
	assert.Contains(t, out, entity.HistoryWorkflowStarted)
	assert.Contains(t, out, entity.HistoryWorkflowCompleted)

	out = env.mustExec(t, "instance", "list", "--status", entity.InstanceStatusApproved)
	assert.Contains(t, out, inst.ID)

	out = env.mustExec(t, "tick")
	assert.Contains(t, out, "overdue:   0")
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t)
	env.mustExec(t, "seed", "-f", env.seedPath)

	_, errOut, code := env.exec("instance", "show", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")

	out := env.mustExec(t, "--json", "instance", "create", "--template", "expense", "--doc", "doc-2", "--as", "ivy")
	var inst entity.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(out), &inst))

	out = env.mustExec(t, "--json", "tasks", "list", "--assignee", "mgr")
	var tasks []*entity.ApprovalTask
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)

	_, errOut, code = env.exec("tasks", "act", tasks[0].ID, "--as", "intruder")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not authorized")

	env.mustExec(t, "instance", "cancel", inst.ID, "--as", "ivy", "--reason", "withdrawn")

	_, errOut, code = env.exec("instance", "cancel", inst.ID, "--as", "ivy")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid state")

	_, _, code = env.exec("tasks", "list")
	assert.Equal(t, 1, code)
}

func TestCLI_MigrateDownAndVersion(t *testing.T) {
	env := newCLIEnv(t)

	env.mustExec(t, "migrate", "up")
	out := env.mustExec(t, "migrate", "down", "--steps", "1")
	assert.Contains(t, out, "schema version 0")

	out = env.mustExec(t, "version")
	assert.Contains(t, out, "Version:")
}
