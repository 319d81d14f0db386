package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"textingest/internal/service"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type contextKey struct{}

// cliState owns the App built for the executing command so it can be
// closed whether or not the command fails.
type cliState struct {
	envFiles []string
	app      *App
}

func (st *cliState) close() {
	if st.app != nil {
		st.app.Close()
		st.app = nil
	}
}

// NewRootCmd creates the root command for textingest.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cliState{})
}

func newRootCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "textingest",
		Short: "Decode CSV and fixed-width text with a schema and deliver records to a queue and/or repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.HasParent() || cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			a, err := newApp(st.envFiles)
			if err != nil {
				return err
			}
			st.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, a))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&st.envFiles, "env-file", nil, "dotenv file(s) to load before the environment (default .env)")

	cmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newPreviewCmd(),
		newWatchCmd(),
		newScheduleCmd(),
		newHistoryCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command with args. The returned error carries an
// ExitCode for main.
func Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st := &cliState{}
	defer st.close()
	cmd := newRootCmd(st)
	cmd.SetArgs(args)
	return withExitCode(cmd.ExecuteContext(ctx))
}

func appFrom(cmd *cobra.Command) *App {
	if cmd.Context() == nil {
		return nil
	}
	a, _ := cmd.Context().Value(contextKey{}).(*App)
	return a
}

func newRunCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <schema> <data>",
		Short: "Decode a data file and deliver every record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			summary, err := a.ingest.Run(cmd.Context(), service.RunRequest{
				SchemaPath: args[0],
				DataPath:   args[1],
				Trigger:    service.TriggerManual,
			})
			if summary != nil {
				out := cmd.OutOrStdout()
				if asJSON {
					if perr := printJSON(out, summary); perr != nil && err == nil {
						err = perr
					}
				} else {
					printSummary(out, summary)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Load and validate a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := appFrom(cmd).ingest.Validate(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), schema)
			}
			printSchema(cmd.OutOrStdout(), schema)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the normalized schema as JSON")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview <schema> <data>",
		Short: "Decode the first lines of a data file without delivering them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			res, err := appFrom(cmd).ingest.Preview(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), previewRows(res.Records))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of lines to decode")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <schema> <data>",
		Short: "Run now and again whenever the schema or data file changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).ingest.Watch(cmd.Context(), service.RunRequest{
				SchemaPath: args[0],
				DataPath:   args[1],
			})
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "schedule <schema> <data>",
		Short: "Run on a cron schedule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expr == "" {
				return fmt.Errorf("missing required flag: --cron")
			}
			return appFrom(cmd).ingest.Schedule(cmd.Context(), expr, service.RunRequest{
				SchemaPath: args[0],
				DataPath:   args[1],
			})
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", `five-field cron expression, e.g. "*/15 * * * *"`)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			logs, err := a.ingest.ListRuns(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), logs)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "history: %s\n", a.history.Path())
			printRuns(cmd.OutOrStdout(), logs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ingestion tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMCP(appFrom(cmd))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
