package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"shadow-ai/src/config"
	"shadow-ai/src/control"
	"shadow-ai/src/llm"
	"shadow-ai/src/logutil"
	"shadow-ai/src/messages"
	"shadow-ai/src/parse"
	"shadow-ai/src/pipeline"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	dataDir    string
	envPath    string
	jsonOutput bool
	verbose    bool
	timeout    time.Duration

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := runWithArgs(os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"shadow-ai-cli"}
	}
	opts := &cliOptions{stdin: stdin, stdout: stdout, stderr: stderr}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shadow-ai-cli",
		Short:         "Drive the shadow-ai resident or solve screenshots directly",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logutil.SetupStderr()
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.dataDir, "data-dir", "", "Directory for config, screenshots and logs")
	pf.StringVar(&opts.envPath, "env", "", "Path to a .env file")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	pf.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall time limit")

	cmd.AddCommand(
		newScreenshotCmd(opts),
		newProcessCmd(opts),
		newSimpleCmd(opts, "reset", "Cancel processing and clear both queues", control.CmdReset),
		newSimpleCmd(opts, "toggle-window", "Show or hide the overlay", control.CmdToggleWindow),
		newListCmd(opts),
		newDeleteCmd(opts),
		newEventsCmd(opts),
		newConfigCmd(opts),
		newValidateKeyCmd(opts),
		newSolveCmd(opts),
	)
	return cmd
}

func (o *cliOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{DataDirOverride: o.dataDir, EnvPathOverride: o.envPath}
}

func (o *cliOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}

func (o *cliOptions) verbosef(format string, args ...any) {
	if o.verbose {
		fmt.Fprintf(o.stderr, "[verbose] "+format+"\n", args...)
	}
}

// connect locates the resident through the configured port range.
func (o *cliOptions) connect(ctx context.Context) (*control.Client, error) {
	settings, err := config.LoadSettingsWithOptions(o.loadOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	ports := control.PortRange{Start: settings.ControlPortStart, End: settings.ControlPortEnd}
	client, err := control.Connect(ctx, ports)
	if err != nil {
		return nil, fmt.Errorf("%w in ports %d-%d; start shadow-ai first", err, ports.Start, ports.End)
	}
	o.verbosef("resident found on port %d", client.Port)
	return client, nil
}

// call runs one resident command and prints its result.
func (o *cliOptions) call(cmd *cobra.Command, command string, args any, print func(json.RawMessage) error) error {
	ctx, cancel := o.context(cmd.Context())
	defer cancel()
	client, err := o.connect(ctx)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	if err := client.Call(ctx, command, args, &raw); err != nil {
		return err
	}
	if o.jsonOutput || print == nil {
		return o.printJSON(raw)
	}
	return print(raw)
}

func (o *cliOptions) printJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func newSimpleCmd(opts *cliOptions, use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, command, nil, nil)
		},
	}
}

func newScreenshotCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the screen into the active queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, control.CmdTakeScreenshot, nil, func(raw json.RawMessage) error {
				var res control.ScreenshotResult
				if err := json.Unmarshal(raw, &res); err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "%s\t%s\n", res.Kind, res.Path)
				return nil
			})
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued screenshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, control.CmdList, nil, func(raw json.RawMessage) error {
				var res control.ListResult
				if err := json.Unmarshal(raw, &res); err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "view: %s\n", res.View)
				for _, s := range res.Screenshots {
					fmt.Fprintf(opts.stdout, "%s\t%s\n", s.Kind, s.Path)
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [path]",
		Short: "Delete a screenshot, or the newest one of the active queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printDeleted := func(raw json.RawMessage) error {
				var res control.DeleteArgs
				if err := json.Unmarshal(raw, &res); err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "deleted %s\n", res.Path)
				return nil
			}
			if len(args) == 0 {
				return opts.call(cmd, control.CmdDeleteLast, nil, printDeleted)
			}
			return opts.call(cmd, control.CmdDelete, control.DeleteArgs{Path: args[0]}, printDeleted)
		},
	}
}

// finalEvent reports whether ev ends a process run.
func finalEvent(ev messages.Event) bool {
	switch ev.Type() {
	case messages.TypeSolutionReady, messages.TypeSolutionError,
		messages.TypeDebugReady, messages.TypeDebugError,
		messages.TypeNoScreenshots, messages.TypeAPIKeyInvalid:
		return true
	}
	return false
}

func newProcessCmd(opts *cliOptions) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Solve the queued screenshots, or debug in the solutions view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noWait {
				return opts.call(cmd, control.CmdProcess, nil, nil)
			}
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()
			client, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			ev, err := client.CallAndWait(ctx, control.CmdProcess, nil, func(ev messages.Event) bool {
				if st, ok := ev.(*messages.ProcessingStatus); ok {
					opts.verbosef("%d%% %s", st.Progress, st.Message)
				}
				return finalEvent(ev)
			})
			if err != nil {
				return err
			}
			return opts.printFinal(ev)
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once processing has started")
	return cmd
}

func (o *cliOptions) printFinal(ev messages.Event) error {
	if o.jsonOutput {
		env, err := messages.Wrap(ev)
		if err != nil {
			return err
		}
		if err := o.printJSON(env); err != nil {
			return err
		}
	}
	switch e := ev.(type) {
	case *messages.SolutionReady:
		if !o.jsonOutput {
			printSolution(o.stdout, e.Solution)
		}
	case *messages.DebugReady:
		if !o.jsonOutput {
			fmt.Fprintln(o.stdout, e.Code)
			fmt.Fprintln(o.stdout)
			fmt.Fprintln(o.stdout, e.DebugAnalysis)
		}
	case *messages.SolutionError:
		return errors.New(e.Message)
	case *messages.DebugError:
		return errors.New(e.Message)
	case *messages.NoScreenshots:
		return errors.New("no screenshots to process")
	case *messages.APIKeyInvalid:
		return errors.New("API key missing or invalid; set one with 'config set --api-key'")
	}
	return nil
}

func printSolution(w io.Writer, sol parse.Solution) {
	fmt.Fprintln(w, sol.Code)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Thoughts:")
	for _, t := range sol.Thoughts {
		fmt.Fprintf(w, "- %s\n", t)
	}
	fmt.Fprintf(w, "Time complexity: %s\n", sol.TimeComplexity)
	fmt.Fprintf(w, "Space complexity: %s\n", sol.SpaceComplexity)
}

func newEventsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream resident events as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(opts.stdout)
			return client.Subscribe(ctx, func(ev messages.Event) bool {
				env, err := messages.Wrap(ev)
				if err != nil {
					return true
				}
				return enc.Encode(env) == nil
			})
		},
	}
}

func newConfigCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the resident configuration",
	}
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the configuration with the API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, control.CmdGetConfig, nil, nil)
		},
	}

	var (
		apiKey, provider, language      string
		extraction, solution, debugging string
		opacity                         float64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Apply a partial configuration update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u config.Partial
			f := cmd.Flags()
			str := func(name, v string) *string {
				if f.Changed(name) {
					return &v
				}
				return nil
			}
			u.APIKey = str("api-key", apiKey)
			u.APIProvider = str("provider", provider)
			u.Language = str("language", language)
			u.ExtractionModel = str("extraction-model", extraction)
			u.SolutionModel = str("solution-model", solution)
			u.DebuggingModel = str("debugging-model", debugging)
			if f.Changed("opacity") {
				u.Opacity = &opacity
			}
			if u == (config.Partial{}) {
				return errors.New("nothing to update; pass at least one flag")
			}
			return opts.call(cmd, control.CmdUpdateConfig, u, nil)
		},
	}
	sf := set.Flags()
	sf.StringVar(&apiKey, "api-key", "", "API key; the provider is inferred unless --provider is given")
	sf.StringVar(&provider, "provider", "", "Provider: openai or gemini")
	sf.StringVar(&language, "language", "", "Target solution language")
	sf.StringVar(&extraction, "extraction-model", "", "Model for problem extraction")
	sf.StringVar(&solution, "solution-model", "", "Model for solution generation")
	sf.StringVar(&debugging, "debugging-model", "", "Model for debugging")
	sf.Float64Var(&opacity, "opacity", 1.0, "Overlay opacity between 0.1 and 1.0")

	cmd.AddCommand(get, set)
	return cmd
}

func newValidateKeyCmd(opts *cliOptions) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "validate-key <api-key>",
		Short: "Check an API key against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := control.ValidateKeyArgs{APIKey: args[0], Provider: provider}
			return opts.call(cmd, control.CmdValidateKey, req, func(raw json.RawMessage) error {
				var res control.ValidateKeyResult
				if err := json.Unmarshal(raw, &res); err != nil {
					return err
				}
				if !res.Valid {
					return fmt.Errorf("invalid API key: %s", res.Error)
				}
				fmt.Fprintln(opts.stdout, "API key is valid")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider: openai or gemini (inferred when empty)")
	return cmd
}

type solveResult struct {
	Problem  parse.ProblemInfo `json:"problem"`
	Solution parse.Solution    `json:"solution"`
	Sources  []string          `json:"sources"`
	Duration float64           `json:"duration_seconds"`
}

func newSolveCmd(opts *cliOptions) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a problem from image files without a resident",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := readImages(files, opts.stdin, opts.verbosef)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()
			return opts.solve(ctx, files, images)
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "Image file, repeatable (use '-' for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (o *cliOptions) solve(ctx context.Context, sources []string, images []llm.Image) error {
	settings, err := config.LoadSettingsWithOptions(o.loadOptions())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	cfgStore := config.NewStore(settings.ConfigPath())
	if !cfgStore.HasAPIKey() {
		return fmt.Errorf("no API key in %s; set one with 'config set --api-key'", cfgStore.Path())
	}
	cfg := cfgStore.Load()
	o.verbosef("provider=%s extraction=%s solution=%s", cfg.APIProvider, cfg.ExtractionModel, cfg.SolutionModel)

	adapter := llm.NewAdapter(cfgStore, llm.Options{
		Timeout:           settings.RequestTimeout(),
		MaxRetries:        settings.MaxRetries,
		RequestsPerSecond: settings.RequestsPerSecond,
		Burst:             settings.Burst,
	})
	proc := pipeline.New(nil, adapter, cfgStore, nil, nil)

	start := time.Now()
	problem, sol, err := proc.Solve(ctx, images)
	elapsed := time.Since(start)
	if err != nil {
		o.verbosef("solve failed after %v: %v", elapsed, err)
		return err
	}
	o.verbosef("solved in %v", elapsed)

	if o.jsonOutput {
		return o.printJSON(solveResult{Problem: problem, Solution: sol, Sources: sources, Duration: elapsed.Seconds()})
	}
	fmt.Fprintf(o.stdout, "Problem: %s\n\n", problem.ProblemStatement)
	printSolution(o.stdout, sol)
	return nil
}

// readImages loads and checks each input. Only one input may be stdin.
func readImages(files []string, stdin io.Reader, verbosef func(string, ...any)) ([]llm.Image, error) {
	var images []llm.Image
	usedStdin := false
	for _, path := range files {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			if usedStdin {
				return nil, errors.New("stdin can only be used once")
			}
			usedStdin = true
			verbosef("reading image from stdin")
			data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
			if err != nil {
				return nil, fmt.Errorf("failed to read from stdin: %w", err)
			}
		} else {
			verbosef("reading image from file: %s", path)
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read file %s: %w", path, err)
			}
		}
		img, err := checkImage(path, data)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func checkImage(source string, data []byte) (llm.Image, error) {
	if len(data) == 0 {
		return llm.Image{}, fmt.Errorf("input %s is empty", source)
	}
	if len(data) > maxFileSize {
		return llm.Image{}, fmt.Errorf("input %s exceeds maximum size of %d MB", source, maxFileSizeMB)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return llm.Image{}, fmt.Errorf("input %s is not an image (%s)", source, mt.String())
	}
	return llm.NewImage(data), nil
}
