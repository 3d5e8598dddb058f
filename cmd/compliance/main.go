// Command compliance checks stored formulations against the EU food additive
// and flavouring databases from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"formulary/internal/compliance"
	"formulary/internal/config"
	"formulary/internal/db"
	"formulary/internal/db/mock"
	"formulary/internal/eu"
	"formulary/internal/formulations"
	applog "formulary/internal/log"
	"formulary/internal/resolver"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

const (
	exitNonCompliant = 2
	exitUsage        = 3
	exitNotFound     = 4
	exitUpstream     = 5
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type rootFlags struct {
	mock      bool
	logLevel  string
	logFormat string
}

type checkFlags struct {
	format      string
	failOnError bool
}

var (
	loadConfigFunc   = config.Load
	openDatabaseFunc = openDatabase
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "compliance",
		Short:         "Check formulations against EU additive and flavouring rules",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applog.ConfigureWriter(stderr, rf.logLevel, rf.logFormat); err != nil {
				return codeError(exitUsage, "invalid logging flags: %s", err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&rf.mock, "mock", false, "Use the seeded in-memory database instead of DATABASE_URL")
	pf.StringVar(&rf.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	pf.StringVar(&rf.logFormat, "log-format", "text", "Log format: text or json")

	var cf checkFlags
	checkCmd := &cobra.Command{
		Use:   "check <formula-id>",
		Short: "Run a compliance check for one formulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), stdout, args[0], rf, cf)
		},
	}
	f := checkCmd.Flags()
	f.StringVar(&cf.format, "format", "text", "Output format: json or text")
	f.BoolVar(&cf.failOnError, "fail-on-error", false, "Exit 2 when the formulation is not compliant")

	datasetsCmd := &cobra.Command{
		Use:   "datasets",
		Short: "Download both EU datasets and print their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets(cmd.Context(), stdout, rf)
		},
	}

	root.AddCommand(checkCmd, datasetsCmd)
	return root
}

type environment struct {
	checker *compliance.Evaluator
	store   *eu.Store
}

func setup(ctx context.Context, rf rootFlags) (*environment, error) {
	cfg, err := loadConfigFunc()
	if err != nil {
		return nil, codeError(exitUsage, "loading configuration: %s", err)
	}

	database, err := openDatabaseFunc(ctx, cfg.Database, rf.mock)
	if err != nil {
		return nil, codeError(1, "opening database: %s", err)
	}

	store := eu.NewStore(eu.Config{
		AdditivesURL:   cfg.EU.AdditivesURL,
		FlavouringsURL: cfg.EU.FlavouringsURL,
		TTL:            cfg.EU.CacheTTL,
		Timeout:        cfg.EU.FetchTimeout,
		FetchInterval:  cfg.EU.FetchInterval,
	})

	return &environment{
		checker: compliance.NewEvaluator(formulations.NewRepository(database), resolver.New(store)),
		store:   store,
	}, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, useMock bool) (*gorm.DB, error) {
	if useMock || cfg.UseMock || strings.TrimSpace(cfg.URL) == "" {
		applog.Info(ctx, "using seeded in-memory database")
		return mock.New(ctx)
	}
	return db.Configure(cfg)
}

func runCheck(ctx context.Context, out io.Writer, rawID string, rf rootFlags, cf checkFlags) error {
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 0)
	if err != nil || id == 0 {
		return codeError(exitUsage, "formula id must be a positive integer, got %q", rawID)
	}
	format := strings.ToLower(strings.TrimSpace(cf.format))
	if format != "json" && format != "text" {
		return codeError(exitUsage, "unknown format %q (want json or text)", cf.format)
	}

	env, err := setup(ctx, rf)
	if err != nil {
		return err
	}

	result, err := env.checker.CheckCompliance(ctx, uint(id))
	if err != nil {
		return checkError(err)
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return codeError(1, "writing result: %s", err)
		}
	} else {
		writeText(out, result)
	}

	if cf.failOnError && !result.IsCompliant {
		return codeError(exitNonCompliant, "formulation %d is not compliant: %d error(s)", id, result.Summary.Errors)
	}
	return nil
}

func checkError(err error) error {
	switch {
	case errors.Is(err, formulations.ErrNotFound):
		return codeError(exitNotFound, "%s", err)
	case errors.Is(err, eu.ErrUpstreamFetch), errors.Is(err, eu.ErrParse):
		return codeError(exitUpstream, "%s", err)
	default:
		return codeError(1, "%s", err)
	}
}

func writeText(w io.Writer, result *compliance.Result) {
	status := "COMPLIANT"
	if !result.IsCompliant {
		status = "NON-COMPLIANT"
	}
	fmt.Fprintf(w, "Formulation: %s (#%d)\n", result.FormulationName, result.FormulationID)
	fmt.Fprintf(w, "Status:      %s\n", status)
	fmt.Fprintf(w, "Checked:     %s (check %s)\n", result.CheckedAt.Format(time.RFC3339), result.CheckID)
	s := result.Summary
	fmt.Fprintf(w, "Substances:  %d (errors %d, warnings %d, not found %d, approved %d)\n",
		result.TotalSubstances, s.Errors, s.Warnings, s.NotFound, s.Approved)

	if len(result.Issues) == 0 {
		fmt.Fprintln(w, "\nNo issues found.")
		return
	}
	fmt.Fprintln(w)
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(string(issue.Severity)), issue.Message)
		if issue.ReferenceURL != "" {
			fmt.Fprintf(w, "        %s\n", issue.ReferenceURL)
		}
	}
}

func runDatasets(ctx context.Context, out io.Writer, rf rootFlags) error {
	env, err := setup(ctx, rf)
	if err != nil {
		return err
	}

	if _, err := env.store.Additives(ctx); err != nil {
		return checkError(err)
	}
	if _, err := env.store.Flavourings(ctx); err != nil {
		return checkError(err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tRECORDS\tFETCHED\tEXPIRES")
	for _, st := range env.store.Status() {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", st.Dataset, st.Records, st.FetchedAt.Format(time.RFC3339), st.ExpiresAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
