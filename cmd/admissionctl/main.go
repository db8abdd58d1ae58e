package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI with args and returns the exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd := newRootCommand(out, errOut)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	if err := cmd.ExecuteContext(ctx); err != nil {
		return writeError(errOut, err)
	}

	return exitOK
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:           "admissionctl",
		Short:         "Operate the library admission engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.bindFlags(root)

	root.AddCommand(
		newMigrateCommand(cfg, out, errOut),
		newPutInventoryCommand(cfg, out, errOut),
		newRequestCommand(cfg, out, errOut),
		newListCommand(cfg, out, errOut),
		newActivateCommand(cfg, out, errOut),
		newReturnCommand(cfg, out, errOut),
		newMarkOverdueCommand(cfg, out, errOut),
		newSimulateCommand(cfg, out, errOut),
	)

	return root
}

// withApp builds the app for one command run and tears it down afterwards.
func withApp(cmd *cobra.Command, cfg *config, out, errOut io.Writer, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, *cfg, out, errOut)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if finishErr := a.finish(ctx); runErr == nil {
		runErr = finishErr
	}

	return runErr
}
