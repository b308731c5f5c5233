package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/output"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

// clientFlags are shared by every command that talks to the workers.
type clientFlags struct {
	user      string
	txnID     string
	wait      bool
	timeout   time.Duration
	interval  time.Duration
	format    string
	noHeaders bool
}

func (f *clientFlags) register(cmd *cobra.Command, wait bool) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.user, "user", os.Getenv("USER"), "namespace to operate in")
	flags.StringVar(&f.txnID, "txn-id", "", "transaction id for log correlation (default: random)")
	flags.BoolVar(&f.wait, "wait", wait, "wait for the task to finish")
	flags.DurationVar(&f.timeout, "timeout", waitTimeout, "how long to wait for the task")
	flags.DurationVar(&f.interval, "poll", 2*time.Second, "status poll interval")
	flags.StringVarP(&f.format, "output", "o", string(output.FormatTable), "output format: table, yaml or json")
	flags.BoolVar(&f.noHeaders, "no-headers", false, "omit table headers")
}

// connect dials NATS using the configuration file.
func (f *clientFlags) connect() (*tasks.Client, func(), error) {
	if err := output.ValidateFormat(f.format); err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	nc, err := tasks.Connect(cfg.NATS.URL, "vlab-avamar-cli", zap.NewNop().Sugar())
	if err != nil {
		return nil, nil, err
	}
	return tasks.NewClient(nc, cfg.NATS.SubjectPrefix), nc.Close, nil
}

// printer renders a successful task's content.
type printer func(f output.Formatter, res v1alpha1.TaskResult) (string, error)

func printMachines(f output.Formatter, res v1alpha1.TaskResult) (string, error) {
	var machines map[string]v1alpha1.MachineInfo
	if err := res.DecodeContent(&machines); err != nil {
		return "", err
	}
	return f.FormatMachines(machines)
}

func printImages(f output.Formatter, res v1alpha1.TaskResult) (string, error) {
	var images map[string][]string
	if err := res.DecodeContent(&images); err != nil {
		return "", err
	}
	return f.FormatImages(images)
}

func printNothing(output.Formatter, v1alpha1.TaskResult) (string, error) {
	return "", nil
}

// printResult prints a finished task. A failed task is returned as an error.
func printResult(opts *clientFlags, handle string, rec *tasks.Record, render printer) error {
	formatter, err := output.NewFormatter(output.Options{
		Format:    output.Format(opts.format),
		NoHeaders: opts.noHeaders,
	})
	if err != nil {
		return err
	}

	if rec.Result == nil {
		return fmt.Errorf("task %s finished without a result", handle)
	}
	if failure := rec.Result.Failure(); failure != "" {
		return fmt.Errorf("%s failed: %s", rec.Name, failure)
	}

	out, err := render(formatter, *rec.Result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if out == "" {
		fmt.Fprintf(os.Stderr, "✓ %s complete\n", rec.Name)
		return nil
	}
	fmt.Print(out)
	return nil
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect submitted tasks",
}

func init() {
	opts := &clientFlags{}
	opts.register(taskCmd, false)

	taskCmd.AddCommand(&cobra.Command{
		Use:   "status <handle>",
		Short: "Show the state of a task",
		Long: `Show the record of a task by the handle printed at submission.

With --wait, block until the task finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle := args[0]

			client, closeFn, err := opts.connect()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var rec tasks.Record
			if opts.wait {
				ctx, cancel := context.WithTimeout(ctx, opts.timeout)
				defer cancel()
				rec, err = client.Wait(ctx, handle, opts.interval)
			} else {
				rec, err = client.Status(ctx, handle)
			}
			if err != nil {
				return err
			}

			formatter, err := output.NewFormatter(output.Options{
				Format:    output.Format(opts.format),
				NoHeaders: opts.noHeaders,
			})
			if err != nil {
				return err
			}
			out, err := formatter.FormatRecord(handle, &rec)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	})
}
