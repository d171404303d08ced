package unsafelocal_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/executor/isolated"
	"github.com/sakif/codeexec/internal/executor/unsafelocal"
	"github.com/sakif/codeexec/internal/interp"
)

func TestMain(m *testing.M) {
	if interp.IsChildInvocation(os.Args) {
		os.Exit(interp.Main(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newExecutor(t *testing.T, cfg unsafelocal.Config) *unsafelocal.Executor {
	t.Helper()
	ex, err := unsafelocal.New(cfg, discard)
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
	t.Run("defaults", func(t *testing.T) {
		ex := newExecutor(t, unsafelocal.Config{})
		assert.False(t, ex.Stateful())
		assert.False(t, ex.OptimizeDataFile())
		assert.False(t, ex.UseIsolatedProcess())
	})

	t.Run("stateful is rejected", func(t *testing.T) {
		ex, err := unsafelocal.New(unsafelocal.Config{Options: executor.Options{Stateful: true}}, discard)
		assert.Nil(t, ex)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrConfiguration))
		assert.Equal(t, "cannot set `stateful=true` in UnsafeLocalExecutor", err.Error())
	})

	t.Run("optimize data file is rejected", func(t *testing.T) {
		ex, err := unsafelocal.New(unsafelocal.Config{
			Options:            executor.Options{OptimizeDataFile: true},
			UseIsolatedProcess: true,
		}, discard)
		assert.Nil(t, ex)
		require.Error(t, err)
		assert.Equal(t, "cannot set `optimize_data_file=true` in UnsafeLocalExecutor", err.Error())
	})

	t.Run("isolated delegate is built eagerly", func(t *testing.T) {
		ex := newExecutor(t, unsafelocal.Config{UseIsolatedProcess: true})
		assert.True(t, ex.UseIsolatedProcess())
	})
}

func TestExecuteInProcess(t *testing.T) {
	ex := newExecutor(t, unsafelocal.Config{})

	t.Run("simple print", func(t *testing.T) {
		res := execute(t, ex, `print("hello world")`)
		assert.Equal(t, "hello world\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
		assert.Equal(t, []executor.File{}, res.OutputFiles)
	})

	t.Run("error carries the short message only", func(t *testing.T) {
		res := execute(t, ex, `fail("Test error")`)
		assert.Equal(t, "", res.Stdout)
		assert.Equal(t, "fail: Test error", res.Stderr)
		assert.NotContains(t, res.Stderr, "Traceback")
		assert.Equal(t, executor.ExitProgramError, res.ExitCode)
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

	t.Run("if main", func(t *testing.T) {
		res := execute(t, ex, "if __name__ == \"__main__\":\n    print(\"executed as main\")")
		assert.Equal(t, "executed as main\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
	})
}

func TestExecuteIsolated(t *testing.T) {
	ex := newExecutor(t, unsafelocal.Config{UseIsolatedProcess: true})

	t.Run("simple print", func(t *testing.T) {
		res := execute(t, ex, `print("hello isolated world")`)
		assert.Equal(t, "hello isolated world\n", res.Stdout)
		assert.Equal(t, "", res.Stderr)
		assert.Equal(t, []executor.File{}, res.OutputFiles)
	})

	t.Run("error", func(t *testing.T) {
		res := execute(t, ex, `fail("Isolated error")`)
		assert.Equal(t, "", res.Stdout)
		assert.Contains(t, res.Stderr, "Isolated error")
	})

	t.Run("memory isolation variable", func(t *testing.T) {
		execute(t, ex, "x = 100")
		res := execute(t, ex, "print(x)")
		assert.Contains(t, res.Stderr, "undefined: x")
	})

	t.Run("memory isolation function", func(t *testing.T) {
		execute(t, ex, "def my_func(): return 'isolated'")
		res := execute(t, ex, "print(my_func())")
		assert.Contains(t, res.Stderr, "undefined: my_func")
	})
}

func TestExecuteIsolatedInfrastructureFailure(t *testing.T) {
	ex := newExecutor(t, unsafelocal.Config{
		UseIsolatedProcess: true,
		Isolated:           isolated.Config{Interpreter: "codeexec-no-such-interpreter"},
	})

	res, err := ex.Execute(context.Background(), executor.ExecutionRequest{Code: `print("hi")`})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, apperror.ErrInfrastructure))
}
