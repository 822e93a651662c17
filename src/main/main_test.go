package main

import (
	"context"
	"errors"
	"testing"

	"shadow-ai/src/control"
)

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--data-dir", "/tmp/shadow", "--no-hotkeys", "--no-tray"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.dataDir != "/tmp/shadow" {
		t.Fatalf("Expected dataDir=/tmp/shadow, got %q", opts.dataDir)
	}
	if !opts.noHotkeys || !opts.noTray {
		t.Fatalf("Expected noHotkeys and noTray, got %+v", *opts)
	}
	lo := opts.loadOptions()
	if lo.DataDirOverride != "/tmp/shadow" {
		t.Fatalf("Expected data dir override, got %q", lo.DataDirOverride)
	}
}

func TestEnsureSingleResident(t *testing.T) {
	ports := control.PortRange{Start: 49600, End: 49650}

	found := func(context.Context, control.PortRange) (int, bool) { return 49601, true }
	err := ensureSingleResident(context.Background(), ports, found)
	if !errors.Is(err, errAlreadyRunning) {
		t.Fatalf("Expected errAlreadyRunning, got %v", err)
	}

	var scanned control.PortRange
	none := func(_ context.Context, p control.PortRange) (int, bool) {
		scanned = p
		return 0, false
	}
	if err := ensureSingleResident(context.Background(), ports, none); err != nil {
		t.Fatalf("Expected no error without a resident, got %v", err)
	}
	if scanned != ports {
		t.Fatalf("Expected scan of %+v, got %+v", ports, scanned)
	}
}
