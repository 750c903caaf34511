package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("sandbox")

var (
	// ErrDisabled is returned by the executor used when no sandbox command is configured
	ErrDisabled = errors.New("execute operations are disabled on this peer")
	// ErrTimeout is returned when the code did not finish within the timeout
	ErrTimeout = errors.New("execution timed out")
)

// maxOutput bounds the size of a value produced by the process executor
const maxOutput = 16 << 20

// IExecutor computes a new value for key from its current value
type IExecutor interface {
	Execute(ctx context.Context, key string, current []byte, code string) ([]byte, error)
}

// ExecutorFunc adapts a function to IExecutor
type ExecutorFunc func(ctx context.Context, key string, current []byte, code string) ([]byte, error)

func (f ExecutorFunc) Execute(ctx context.Context, key string, current []byte, code string) ([]byte, error) {
	return f(ctx, key, current, code)
}

// Disabled returns an executor that refuses every execution
func Disabled() IExecutor {
	return ExecutorFunc(func(context.Context, string, []byte, string) ([]byte, error) {
		return nil, ErrDisabled
	})
}

// Run executes code with exec, bounded by timeout. A result that arrives after the timeout
// is discarded, also if the executor ignores the context.
func Run(ctx context.Context, e IExecutor, timeout time.Duration, key string, current []byte, code string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := e.Execute(ctx, key, current, code)
		done <- result{value, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		if res.err != nil {
			return nil, res.err
		}
		if res.value == nil {
			return nil, fmt.Errorf("execution on key %q returned no value", key)
		}
		return res.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Process Executor
// --------------------------------------------------------------------------

type processExecutor struct {
	command []string
}

// NewProcessExecutor creates an executor that runs command with the code as last argument,
// e.g. []string{"sh", "-c"}
func NewProcessExecutor(command []string) (IExecutor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("sandbox command must not be empty")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("sandbox command %q not found: %w", command[0], err)
	}
	return &processExecutor{command: append([]string(nil), command...)}, nil
}

// ParseCommand splits a command line on whitespace
func ParseCommand(s string) []string {
	return strings.Fields(s)
}

func (p *processExecutor) Execute(ctx context.Context, key string, current []byte, code string) ([]byte, error) {
	args := append(append([]string(nil), p.command[1:]...), code)
	cmd := exec.CommandContext(ctx, p.command[0], args...)

	available := "0"
	if current != nil {
		available = "1"
	}
	cmd.Env = append(os.Environ(), "BKV_KEY="+key, "BKV_VALUE_AVAILABLE="+available)
	cmd.Stdin = bytes.NewReader(current)
	// do not wait for orphaned children holding the pipes once the process is killed
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = maxOutput, 4096
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	Logger.Debugf("executed code on key %q in %v (err=%v)", key, time.Since(start), err)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("execution on key %q failed: %w", key, err)
		}
		return nil, fmt.Errorf("execution on key %q failed: %w: %s", key, err, msg)
	}
	if stdout.overflow {
		return nil, fmt.Errorf("execution on key %q produced more than %d bytes", key, maxOutput)
	}

	out := stdout.Bytes()
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// limitedBuffer drops everything written past limit
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); len(p) > room {
		b.overflow = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
