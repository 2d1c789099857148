package database

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

// workflow store names the adapter can export and import
const (
	WorkflowStoreCredentials = "credentials"
	WorkflowStoreWorkflows   = "workflows"
)

// WorkflowAdapter exports and imports the workflow automation tool's
// credential and workflow stores by running the tool's own CLI inside its
// container. The descriptor's Database field selects the store and its
// Container field names the container.
type WorkflowAdapter struct {
	docker *client.Client
	logger *logging.Logger
}

// NewWorkflowAdapter creates the adapter and verifies the Docker daemon is
// reachable
func NewWorkflowAdapter(logger *logging.Logger) (*WorkflowAdapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, backup.NewInfrastructureError("failed to create docker client", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, backup.NewInfrastructureError("cannot connect to docker daemon", err)
	}
	return &WorkflowAdapter{docker: cli, logger: logger}, nil
}

// Type identifies the adapter
func (a *WorkflowAdapter) Type() string { return "workflow" }

// Extension is the dump file suffix
func (a *WorkflowAdapter) Extension() string { return ".json" }

// Dump exports the selected store to destPath. Credentials are exported
// decrypted; the artifact is expected to be protected by the vault key hash
// and storage-side encryption, not by the tool's own key.
func (a *WorkflowAdapter) Dump(ctx context.Context, db *backup.DatabaseDescriptor, destPath string) error {
	containerID, err := a.resolveContainer(ctx, db.Container)
	if err != nil {
		return err
	}

	remotePath := "/tmp/dbguardian_export.json"
	var cmd []string
	switch db.Database {
	case WorkflowStoreCredentials:
		cmd = []string{"n8n", "export:credentials", "--all", "--decrypted", "--output=" + remotePath}
	case WorkflowStoreWorkflows:
		cmd = []string{"n8n", "export:workflow", "--all", "--output=" + remotePath}
	default:
		return backup.NewValidationError(
			fmt.Sprintf("unknown workflow store %q (expected %s or %s)",
				db.Database, WorkflowStoreCredentials, WorkflowStoreWorkflows), nil)
	}

	if err := a.execInContainer(ctx, containerID, cmd); err != nil {
		return err
	}
	return a.copyFromContainer(ctx, containerID, remotePath, destPath)
}

// Restore imports the export at srcPath into the selected store
func (a *WorkflowAdapter) Restore(ctx context.Context, db *backup.DatabaseDescriptor, srcPath string) error {
	containerID, err := a.resolveContainer(ctx, db.Container)
	if err != nil {
		return err
	}

	remotePath := "/tmp/dbguardian_import.json"
	if err := a.copyToContainer(ctx, containerID, srcPath, remotePath); err != nil {
		return err
	}

	var cmd []string
	switch db.Database {
	case WorkflowStoreCredentials:
		cmd = []string{"n8n", "import:credentials", "--input=" + remotePath}
	case WorkflowStoreWorkflows:
		cmd = []string{"n8n", "import:workflow", "--input=" + remotePath}
	default:
		return backup.NewValidationError(
			fmt.Sprintf("unknown workflow store %q", db.Database), nil)
	}
	return a.execInContainer(ctx, containerID, cmd)
}

// ListDatabases enumerates the exportable stores
func (a *WorkflowAdapter) ListDatabases(ctx context.Context, db *backup.DatabaseDescriptor) ([]string, error) {
	if _, err := a.resolveContainer(ctx, db.Container); err != nil {
		return nil, err
	}
	return []string{WorkflowStoreCredentials, WorkflowStoreWorkflows}, nil
}

// resolveContainer finds a running container by name or id prefix
func (a *WorkflowAdapter) resolveContainer(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", backup.NewValidationError("workflow adapter requires a container name", nil)
	}
	containers, err := a.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", backup.NewInfrastructureError("failed to list containers", err)
	}
	for _, c := range containers {
		if c.ID == name || strings.HasPrefix(c.ID, name) {
			return a.requireRunning(c)
		}
		for _, containerName := range c.Names {
			if strings.TrimPrefix(containerName, "/") == name {
				return a.requireRunning(c)
			}
		}
	}
	return "", backup.NewInfrastructureError(
		fmt.Sprintf("container %q not found", name), nil)
}

func (a *WorkflowAdapter) requireRunning(c types.Container) (string, error) {
	if c.State != "running" {
		return "", backup.NewInfrastructureError(
			fmt.Sprintf("container %q is not running (state: %s)", strings.Join(c.Names, ","), c.State), nil)
	}
	return c.ID, nil
}

// execInContainer runs a command in the container and fails on a non-zero
// exit code, carrying the command output for classification
func (a *WorkflowAdapter) execInContainer(ctx context.Context, containerID string, cmd []string) error {
	execResp, err := a.docker.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return backup.NewInfrastructureError("failed to create container exec", err)
	}

	attach, err := a.docker.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return backup.NewInfrastructureError("failed to attach to container exec", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return backup.NewInfrastructureError("failed to read container exec output", err)
	}

	inspect, err := a.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return backup.NewInfrastructureError("failed to inspect container exec", err)
	}
	if inspect.ExitCode != 0 {
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		return classifyExecError(cmd[0], fmt.Errorf("exit code %d", inspect.ExitCode), output)
	}
	a.logger.WithField("command", strings.Join(cmd, " ")).Debug("container command finished")
	return nil
}

// copyFromContainer extracts a single file from the container's filesystem.
// The Docker API wraps the file in a tar stream.
func (a *WorkflowAdapter) copyFromContainer(ctx context.Context, containerID, remotePath, destPath string) error {
	reader, _, err := a.docker.CopyFromContainer(ctx, containerID, remotePath)
	if err != nil {
		return backup.NewInfrastructureError("failed to copy export from container", err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return backup.NewInfrastructureError("failed to read export archive", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return backup.NewInfrastructureError("failed to create export file", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return backup.NewInfrastructureError("failed to write export file", err)
		}
		return out.Close()
	}
	return backup.NewInfrastructureError(
		fmt.Sprintf("export file %s not found in container", remotePath), nil)
}

// copyToContainer places a single file into the container's filesystem
func (a *WorkflowAdapter) copyToContainer(ctx context.Context, containerID, srcPath, remotePath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return backup.NewInfrastructureError("failed to read import file", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: filepath.Base(remotePath),
		Mode: 0o600,
		Size: int64(len(data)),
	}); err != nil {
		return backup.NewInfrastructureError("failed to build import archive", err)
	}
	if _, err := tw.Write(data); err != nil {
		return backup.NewInfrastructureError("failed to build import archive", err)
	}
	if err := tw.Close(); err != nil {
		return backup.NewInfrastructureError("failed to build import archive", err)
	}

	if err := a.docker.CopyToContainer(ctx, containerID, filepath.Dir(remotePath), &buf, types.CopyToContainerOptions{}); err != nil {
		return backup.NewInfrastructureError("failed to copy import into container", err)
	}
	return nil
}
