package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testExec(buf *bytes.Buffer) *Exec {
	return &Exec{Logger: slog.New(slog.NewTextHandler(buf, nil)), Grace: time.Second}
}

func TestRunSuccessStreamsOutput(t *testing.T) {
	var buf bytes.Buffer
	res, err := testExec(&buf).Run(context.Background(), Command{
		Step: "build",
		Args: []string{"sh", "-c", "echo hello; echo world >&2"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.ElementsMatch(t, []string{"hello", "world"}, res.Tail)
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "step=build")
}

func TestRunPassesEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	res, err := testExec(&buf).Run(context.Background(), Command{
		Step: "env",
		Args: []string{"sh", "-c", `echo "$DOWNLOAD_STATS $(pwd)"`},
		Dir:  dir,
		Env:  []string{"DOWNLOAD_STATS=false", "DOWNLOAD_STATS=true"},
	})
	require.NoError(t, err)
	require.Len(t, res.Tail, 1)
	require.True(t, strings.HasPrefix(res.Tail[0], "true "), res.Tail[0])
	require.True(t, strings.HasSuffix(res.Tail[0], filepath.Base(dir)), res.Tail[0])
}

func TestRunNonZeroExit(t *testing.T) {
	var buf bytes.Buffer
	res, err := testExec(&buf).Run(context.Background(), Command{Step: "linkcheck", Args: []string{"sh", "-c", "echo nothing matched; exit 5"}})
	require.Error(t, err)
	require.Equal(t, 5, res.ExitCode)

	code, ok := ExitCode(err)
	require.True(t, ok)
	require.Equal(t, 5, code)

	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	require.Contains(t, ee.Error(), "nothing matched")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var buf bytes.Buffer
	_, err := testExec(&buf).Run(ctx, Command{Step: "test", Args: []string{"sh", "-c", "sleep 10"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	_, isExit := ExitCode(err)
	require.False(t, isExit)
}

func TestRunMissingBinary(t *testing.T) {
	var buf bytes.Buffer
	_, err := testExec(&buf).Run(context.Background(), Command{Step: "x", Args: []string{"docpublisher-no-such-binary"}})
	require.Error(t, err)
	_, isExit := ExitCode(err)
	require.False(t, isExit)

	_, err = testExec(&buf).Run(context.Background(), Command{Step: "x"})
	require.Error(t, err)
}

func TestFuncAdapter(t *testing.T) {
	var got Command
	r := Func(func(_ context.Context, c Command) (Result, error) {
		got = c
		return Result{ExitCode: 0}, nil
	})
	_, err := r.Run(context.Background(), Command{Step: "s", Args: []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, "s", got.Step)
}

func TestRunTruncatesOverlongLinesAndKeepsReading(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var buf bytes.Buffer
	res, err := testExec(&buf).Run(ctx, Command{
		Step: "build",
		Args: []string{"sh", "-c", `head -c 3145728 /dev/zero | tr '\0' x; echo; echo done`},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, []string{strings.Repeat("x", maxLineLength) + truncatedSuffix, "done"}, res.Tail)
}
