package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cuemby/flock/pkg/types"
)

// Exec builds a JobFunc that runs an external command per job, giving true
// process isolation: when the per-job deadline expires the child process is
// killed, not abandoned. Occurrences of "{input}" in args are replaced with
// the job input rendered as a string; with no placeholder the input is
// appended as the final argument.
func Exec(name string, args ...string) JobFunc {
	return func(ctx context.Context, input any, info map[string]any) types.Result {
		rendered := fmt.Sprint(input)

		argv := make([]string, 0, len(args)+1)
		replaced := false
		for _, arg := range args {
			if strings.Contains(arg, "{input}") {
				replaced = true
				argv = append(argv, strings.ReplaceAll(arg, "{input}", rendered))
				continue
			}
			argv = append(argv, arg)
		}
		if !replaced {
			argv = append(argv, rendered)
		}

		cmd := exec.CommandContext(ctx, name, argv...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if ctx.Err() != nil {
			return types.Result{Status: types.JobCrashed, Error: "job timeout"}
		}
		if err != nil {
			return types.Result{
				Status: types.JobFailed,
				Error:  fmt.Sprintf("%v: %s", err, strings.TrimSpace(stderr.String())),
			}
		}
		return types.Result{
			Status: types.JobSuccess,
			Output: strings.TrimSpace(stdout.String()),
		}
	}
}
