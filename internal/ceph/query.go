package ceph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Admin socket commands.
const (
	CommandPerfDump   = "perf dump"
	CommandPerfSchema = "perf schema"
)

const maxStderrBytes = 8 * 1024

// ErrQueryFailed reports an admin socket query that did not exit cleanly.
var ErrQueryFailed = errors.New("admin socket query failed")

// Querier runs one admin socket command.
type Querier interface {
	Query(ctx context.Context, socket string, command string) ([]byte, error)
}

type cappedBuffer struct {
	buffer bytes.Buffer
	max    int
}

// Write appends data up to configured cap and silently drops the rest.
// Params: payload chunk bytes.
// Returns: consumed input size to keep writer contract for command pipes.
func (b *cappedBuffer) Write(payload []byte) (int, error) {
	if b.max <= 0 || b.buffer.Len() >= b.max {
		return len(payload), nil
	}

	remaining := b.max - b.buffer.Len()
	if len(payload) > remaining {
		_, _ = b.buffer.Write(payload[:remaining])
		return len(payload), nil
	}

	_, _ = b.buffer.Write(payload)
	return len(payload), nil
}

// CommandQuerier runs `<binary> --admin-daemon <socket> <command...>`.
// Params: Binary path to the ceph executable; Timeout per-query limit (0 disables).
// Returns: querier implementation.
type CommandQuerier struct {
	Binary  string
	Timeout time.Duration
}

// Query executes one admin socket command and returns its stdout.
// Params: ctx for cancellation; socket admin socket path; command space-separated command words.
// Returns: raw stdout or error wrapping ErrQueryFailed.
func (q CommandQuerier) Query(ctx context.Context, socket string, command string) ([]byte, error) {
	runCtx := ctx
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	args := append([]string{"--admin-daemon", socket}, strings.Fields(command)...)
	cmd := exec.CommandContext(runCtx, q.Binary, args...)

	stdout := &cappedBuffer{max: MaxPayloadBytes + 1}
	stderr := &cappedBuffer{max: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %q on %s timed out after %s", ErrQueryFailed, command, socket, q.Timeout)
		}

		stderrText := strings.TrimSpace(stderr.buffer.String())
		if stderrText == "" {
			return nil, fmt.Errorf("%w: %q on %s: %w", ErrQueryFailed, command, socket, err)
		}
		return nil, fmt.Errorf("%w: %q on %s: %w (stderr: %s)", ErrQueryFailed, command, socket, err, stderrText)
	}

	return stdout.buffer.Bytes(), nil
}
