package isolated_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/executor/isolated"
	"github.com/sakif/codeexec/internal/interp"
)

// The test binary doubles as the child interpreter: the executor launches
// os.Executable() with "-c <source>" and this hook runs it.
func TestMain(m *testing.M) {
	if interp.IsChildInvocation(os.Args) {
		os.Exit(interp.Main(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newExecutor(t *testing.T, cfg isolated.Config) *isolated.Executor {
	t.Helper()
	ex, err := isolated.New(cfg, discard)
	require.NoError(t, err)
	return ex
}

func execute(t *testing.T, ex executor.Executor, code string) *executor.ExecutionResult {
	t.Helper()
	res, err := ex.Execute(context.Background(), executor.ExecutionRequest{Code: code})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestNew(t *testing.T) {
	t.Run("defaults to the host executable", func(t *testing.T) {
		ex := newExecutor(t, isolated.Config{})
		self, err := os.Executable()
		require.NoError(t, err)
		assert.Equal(t, self, ex.Interpreter())
		assert.False(t, ex.Stateful())
		assert.False(t, ex.OptimizeDataFile())
	})

	t.Run("stateful is rejected", func(t *testing.T) {
		ex, err := isolated.New(isolated.Config{Options: executor.Options{Stateful: true}}, discard)
		assert.Nil(t, ex)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrConfiguration))
		assert.Equal(t, "cannot set `stateful=true` in IsolatedExecutor", err.Error())
	})

	t.Run("optimize data file is rejected", func(t *testing.T) {
		ex, err := isolated.New(isolated.Config{Options: executor.Options{OptimizeDataFile: true}}, discard)
		assert.Nil(t, ex)
		require.Error(t, err)
		assert.Equal(t, "cannot set `optimize_data_file=true` in IsolatedExecutor", err.Error())
	})
}

func TestExecute(t *testing.T) {
	ex := newExecutor(t, isolated.Config{})

	t.Run("simple print", func(t *testing.T) {
		res := execute(t, ex, `print("hello world")`)
		assert.Equal(t, "hello world\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
		assert.Equal(t, []executor.File{}, res.OutputFiles)
		assert.Equal(t, 0, res.ExitCode)
	})

	t.Run("error", func(t *testing.T) {
		res := execute(t, ex, `fail("Test error")`)
		assert.Equal(t, "", res.Stdout)
		assert.Contains(t, res.Stderr, "Test error")
		assert.Equal(t, []executor.File{}, res.OutputFiles)
		assert.Equal(t, interp.ExitProgramError, res.ExitCode)
		assert.False(t, res.TimedOut)
	})

	t.Run("variable assignment", func(t *testing.T) {
		res := execute(t, ex, "x = 10\nprint(x * 2)")
		assert.Equal(t, "20\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})

	t.Run("empty code", func(t *testing.T) {
		res := execute(t, ex, "")
		assert.Equal(t, "", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})

	t.Run("multiline output", func(t *testing.T) {
		res := execute(t, ex, "print(\"line 1\")\nprint(\"line 2\")")
		assert.Equal(t, "line 1\nline 2\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})

	t.Run("runs as main program", func(t *testing.T) {
		res := execute(t, ex, "if __name__ == '__main__':\n    print(\"executed as main\")")
		assert.Equal(t, "executed as main\n", res.Stdout)
	})
}

func TestExecuteMemoryIsolation(t *testing.T) {
	ex := newExecutor(t, isolated.Config{})

	t.Run("variable", func(t *testing.T) {
		execute(t, ex, "x = 100")
		res := execute(t, ex, "print(x)")
		assert.Contains(t, res.Stderr, "undefined: x")
		assert.NotEqual(t, 0, res.ExitCode)
	})

	t.Run("function", func(t *testing.T) {
		execute(t, ex, "def my_func(): return 'isolated'")
		res := execute(t, ex, "print(my_func())")
		assert.Contains(t, res.Stderr, "undefined: my_func")
	})
}

func TestExecuteTimeout(t *testing.T) {
	ex := newExecutor(t, isolated.Config{Timeout: 300 * time.Millisecond})

	res := execute(t, ex, "while True:\n    pass")
	assert.True(t, res.TimedOut)
	assert.Equal(t, executor.ExitTimeout, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestExecuteCallerCancellation(t *testing.T) {
	ex := newExecutor(t, isolated.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := ex.Execute(ctx, executor.ExecutionRequest{Code: "while True:\n    pass"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteInfrastructureFailure(t *testing.T) {
	t.Run("interpreter not on PATH", func(t *testing.T) {
		ex := newExecutor(t, isolated.Config{Interpreter: "codeexec-no-such-interpreter"})

		res, err := ex.Execute(context.Background(), executor.ExecutionRequest{Code: `print("hi")`})
		assert.Nil(t, res)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrInfrastructure))
		assert.True(t, errors.Is(err, exec.ErrNotFound))
	})

	t.Run("interpreter path does not exist", func(t *testing.T) {
		ex := newExecutor(t, isolated.Config{Interpreter: "/nonexistent/bin/interpreter"})

		res, err := ex.Execute(context.Background(), executor.ExecutionRequest{Code: `print("hi")`})
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, apperror.ErrInfrastructure))
	})
}

func TestExecuteConcurrent(t *testing.T) {
	ex := newExecutor(t, isolated.Config{})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := ex.Execute(context.Background(), executor.ExecutionRequest{
				Code: fmt.Sprintf("v = %d\nprint(v)", i),
			})
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("%d\n", i); res.Stdout != want {
				return fmt.Errorf("call %d: stdout = %q, want %q", i, res.Stdout, want)
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
}

func TestExecuteEnvironment(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	ex := newExecutor(t, isolated.Config{
		Interpreter: "sh",
		Env:         []string{"CODEEXEC_TEST_VALUE=from-config"},
		Dir:         dir,
	})

	res := execute(t, ex, `echo "$CODEEXEC_TEST_VALUE"; pwd`)
	assert.Contains(t, res.Stdout, "from-config\n")
	assert.Contains(t, res.Stdout, dir)
}

func TestExecuteBackgroundProcessHoldsPipes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	t.Run("output kept after wait delay", func(t *testing.T) {
		ex := newExecutor(t, isolated.Config{
			Interpreter: "sh",
			WaitDelay:   300 * time.Millisecond,
		})

		res, err := ex.Execute(context.Background(), executor.ExecutionRequest{Code: "sleep 3 & echo hi"})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "hi\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
		assert.Equal(t, 0, res.ExitCode)
		assert.False(t, res.TimedOut)
	})

	t.Run("deadline passing after a clean exit is not a timeout", func(t *testing.T) {
		ex := newExecutor(t, isolated.Config{
			Interpreter: "sh",
			Timeout:     200 * time.Millisecond,
			WaitDelay:   time.Second,
		})

		res := execute(t, ex, "sleep 3 & echo done")
		assert.Equal(t, "done\n", res.Stdout)
		assert.NotContains(t, res.Stderr, "timed out")
		assert.Equal(t, 0, res.ExitCode)
		assert.False(t, res.TimedOut)
	})
}

// Runs the classic scenarios against a real Python runtime when one exists.
func TestExecutePython(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	pyExec := newExecutor(t, isolated.Config{Interpreter: python})

	t.Run("simple print", func(t *testing.T) {
		res := execute(t, pyExec, `print("hello world")`)
		assert.Equal(t, "hello world\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})

	t.Run("raise", func(t *testing.T) {
		res := execute(t, pyExec, `raise ValueError("Test error")`)
		assert.Equal(t, "", res.Stdout)
		assert.Contains(t, res.Stderr, "Test error")
		assert.Equal(t, 1, res.ExitCode)
	})

	t.Run("import", func(t *testing.T) {
		res := execute(t, pyExec, "import os; print(os.linesep)")
		assert.Equal(t, "\n\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})

	t.Run("memory isolation", func(t *testing.T) {
		execute(t, pyExec, "x = 100")
		res := execute(t, pyExec, "print(x)")
		assert.Contains(t, res.Stderr, "name 'x' is not defined")

		execute(t, pyExec, "def my_func(): return 'isolated'")
		res = execute(t, pyExec, "print(my_func())")
		assert.Contains(t, res.Stderr, "name 'my_func' is not defined")
	})
}
