package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shadow-ai/src/config"
	"shadow-ai/src/control"
	"shadow-ai/src/logutil"
	"shadow-ai/src/runtimeinit"
	"shadow-ai/src/tray"
)

var errAlreadyRunning = errors.New("a resident instance is already running")

type mainOptions struct {
	dataDir   string
	envPath   string
	noHotkeys bool
	noTray    bool
}

type detectFunc func(ctx context.Context, ports control.PortRange) (int, bool)

func main() {
	// systray needs the main OS thread on some platforms
	runtime.LockOSThread()
	preparePlatform()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shadow-ai",
		Short:         "Screenshot queue and AI solution pipeline resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd.Context(), *opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory for config, screenshots and logs")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file")
	cmd.Flags().BoolVar(&opts.noHotkeys, "no-hotkeys", false, "Do not register global hotkeys")
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "Run without a tray icon")
	return cmd
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{DataDirOverride: o.dataDir, EnvPathOverride: o.envPath}
}

// ensureSingleResident fails when another resident answers PING in the
// control port range.
func ensureSingleResident(ctx context.Context, ports control.PortRange, detect detectFunc) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if port, ok := detect(ctx, ports); ok {
		return fmt.Errorf("%w on port %d", errAlreadyRunning, port)
	}
	return nil
}

func runResident(parent context.Context, opts mainOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	settings, err := config.LoadSettingsWithOptions(opts.loadOptions())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	ports := control.PortRange{Start: settings.ControlPortStart, End: settings.ControlPortEnd}
	if err := ensureSingleResident(parent, ports, control.DetectResidentPort); err != nil {
		return err
	}

	app, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  opts.loadOptions(),
		SetupLogging: logutil.Setup,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown()
	defer cancel()

	if !opts.noHotkeys {
		if err := app.StartHotkeys(ctx); err != nil {
			log.Printf("main: hotkeys disabled: %v", err)
		}
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			log.Printf("main: signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.noTray {
		<-ctx.Done()
		return nil
	}

	t := tray.New(tray.Actions{
		Screenshot:   func() { app.Loop.Post(control.CmdTakeScreenshot) },
		Solve:        func() { app.Loop.Post(control.CmdProcess) },
		Reset:        func() { app.Loop.Post(control.CmdReset) },
		ToggleWindow: func() { app.Loop.Post(control.CmdToggleWindow) },
		Quit:         cancel,
	})
	t.SetAbout(fmt.Sprintf("Control port: %d", app.Control.Port()))
	events, err := app.Bus.Subscribe("tray", 16)
	if err != nil {
		return err
	}
	go t.Follow(ctx, events)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
	return nil
}
