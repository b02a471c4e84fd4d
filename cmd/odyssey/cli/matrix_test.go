package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
	"github.com/odyssey-erp/odyssey-docflow/jobs"
)

type stubMatrix struct {
	snap     rbac.Snapshot
	imported []rbac.Snapshot
	actor    rbac.Actor
	err      error
}

func (s *stubMatrix) Export() rbac.Snapshot { return s.snap }

func (s *stubMatrix) Import(ctx context.Context, actor rbac.Actor, snap rbac.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.actor = actor
	s.imported = append(s.imported, snap)
	return nil
}

func sampleSnapshot() rbac.Snapshot {
	return rbac.Snapshot{Version: rbac.SnapshotVersion, Roles: []rbac.RoleGrants{
		{Role: rbac.RoleAccountant, Capabilities: []catalog.Capability{catalog.Cap(catalog.ModulePurchaseRequest, "mark-paid")}},
	}}
}

func TestMatrixExportToStdout(t *testing.T) {
	m := &stubMatrix{snap: sampleSnapshot()}
	var stdout, stderr bytes.Buffer

	code := NewMatrixCLI(m).Run(context.Background(), []string{"export"}, MatrixOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())

	var decoded rbac.Snapshot
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.Equal(t, m.snap, decoded)
}

func TestMatrixExportImportFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.json")
	source := &stubMatrix{snap: sampleSnapshot()}
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, NewMatrixCLI(source).Run(context.Background(), []string{"export", path}, MatrixOptions{Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stdout.String(), path)

	target := &stubMatrix{}
	code := NewMatrixCLI(target).Run(context.Background(), []string{"import", path, "--actor", "ops-bot"}, MatrixOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, []rbac.Snapshot{source.snap}, target.imported)
	require.Equal(t, "ops-bot", target.actor.ID)
	require.True(t, target.actor.Roles.HasSuperuser())
}

func TestMatrixImportFailures(t *testing.T) {
	var stdout, stderr bytes.Buffer
	m := &stubMatrix{}
	cli := NewMatrixCLI(m)

	require.Equal(t, 2, cli.Run(context.Background(), []string{"import"}, MatrixOptions{Stdout: &stdout, Stderr: &stderr}))
	require.Equal(t, 2, cli.Run(context.Background(), []string{"purge"}, MatrixOptions{Stdout: &stdout, Stderr: &stderr}))

	code := cli.ImportCommand(context.Background(), MatrixOptions{Path: "-", Stdin: strings.NewReader(`{"version":1,"extra":true}`), Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 1, code)
	require.Empty(t, m.imported)

	m.err = shared.ValidationError("unknown_capability", "roles", "stock.adjust is not catalogued")
	stderr.Reset()
	code = cli.ImportCommand(context.Background(), MatrixOptions{Path: "-", Stdin: strings.NewReader(`{"version":1,"roles":[]}`), Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 10, code)
	require.Contains(t, stderr.String(), "stock.adjust")

	missing := filepath.Join(t.TempDir(), "absent.json")
	_, err := os.Stat(missing)
	require.True(t, os.IsNotExist(err))
	require.Equal(t, 1, cli.ImportCommand(context.Background(), MatrixOptions{Path: missing, Stdout: &stdout, Stderr: &stderr}))
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskAuditVerify)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskAuditVerify, task.Type())

	task, err = BuildTask(jobs.TaskMatrixSnapshot)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskMatrixSnapshot, task.Type())

	_, err = BuildTask("procurement:reindex")
	require.Error(t, err)
}
