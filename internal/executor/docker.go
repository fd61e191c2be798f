package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// execOutput is what a command run inside the container produced.
type execOutput struct {
	stdout   string
	stderr   string
	exitCode int
}

// execRunner runs cmd inside the target container with stdin attached.
type execRunner func(ctx context.Context, cmd []string, stdin string) (execOutput, error)

// DockerExecutor runs psql inside a running database container through the
// Docker Engine exec API.
type DockerExecutor struct {
	settings
	container string
	user      string
	database  string
	run       execRunner
}

// NewDocker returns an executor targeting containerName. The Docker client
// is configured from DOCKER_HOST and related environment variables.
func NewDocker(containerName, user, database string, opts ...Option) (*DockerExecutor, error) {
	if containerName == "" {
		return nil, errors.New("docker executor requires a container name")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating Docker client: %w", err)
	}

	d := newDockerWithRunner(containerName, user, database, nil, opts...)
	d.run = func(ctx context.Context, cmd []string, stdin string) (execOutput, error) {
		return execInContainer(ctx, cli, containerName, d.user, cmd, stdin)
	}

	return d, nil
}

// newDockerWithRunner creates a DockerExecutor with an injected runner (for testing).
func newDockerWithRunner(containerName, user, database string, run execRunner, opts ...Option) *DockerExecutor {
	if user == "" {
		user = "postgres"
	}

	if database == "" {
		database = "postgres"
	}

	return &DockerExecutor{
		settings:  newSettings(opts),
		container: containerName,
		user:      user,
		database:  database,
		run:       run,
	}
}

// Name returns the strategy name.
func (d *DockerExecutor) Name() string {
	return StrategyDocker
}

// Execute pipes sql into psql running inside the container.
func (d *DockerExecutor) Execute(ctx context.Context, sql string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := append([]string{"psql"}, psqlArgs(wantsTransaction(sql, d.logger))...)
	cmd = append(cmd, "-U", d.user, "-d", d.database, "-f", "-")

	d.logger.Debug("running psql in container",
		slog.String("container", d.container),
		slog.String("user", d.user),
	)

	start := time.Now()
	out, err := d.run(ctx, cmd, sql)
	duration := time.Since(start)

	if err != nil {
		return nil, &ExecutionError{
			Strategy: StrategyDocker,
			ExitCode: -1,
			TimedOut: timedOut(ctx),
			Err:      err,
		}
	}

	if out.exitCode != 0 {
		return nil, psqlFailure(ctx, StrategyDocker, out.exitCode, out.stderr,
			fmt.Errorf("psql in container %s exited with status %d", d.container, out.exitCode))
	}

	return &Result{Duration: duration, Output: strings.TrimSpace(out.stdout)}, nil
}

// execInContainer creates an exec session, streams stdin, demultiplexes the
// output and reads the exit code.
func execInContainer(
	ctx context.Context,
	cli *client.Client,
	containerName, user string,
	cmd []string,
	stdin string,
) (execOutput, error) {
	created, err := cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		User:         user,
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return execOutput{}, fmt.Errorf("creating exec in container %s: %w", containerName, err)
	}

	attached, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return execOutput{}, fmt.Errorf("attaching to exec %s: %w", created.ID, err)
	}
	defer attached.Close()

	go func() {
		_, _ = io.Copy(attached.Conn, strings.NewReader(stdin))
		_ = attached.CloseWrite()
	}()

	var stdout, stderr bytes.Buffer

	copied := make(chan error, 1)

	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return execOutput{}, fmt.Errorf("reading exec output: %w", err)
		}
	case <-ctx.Done():
		return execOutput{}, ctx.Err()
	}

	exitCode, err := waitExecExit(ctx, cli.ContainerExecInspect, created.ID, execPollInterval)
	if err != nil {
		return execOutput{}, err
	}

	return execOutput{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		exitCode: exitCode,
	}, nil
}

const execPollInterval = 50 * time.Millisecond

type execInspector func(ctx context.Context, execID string) (container.ExecInspect, error)

// waitExecExit polls the exec session until the daemon reports it stopped.
// The output stream can close before the process is reaped, and a running
// session reports exit code 0.
func waitExecExit(ctx context.Context, inspect execInspector, execID string, interval time.Duration) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		inspected, err := inspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("inspecting exec %s: %w", execID, err)
		}

		if !inspected.Running {
			return inspected.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for exec %s to exit: %w", execID, ctx.Err())
		case <-ticker.C:
		}
	}
}
