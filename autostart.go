package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
)

// autostartApp describes the login item. It starts the daemon with --boot so
// the session start is logged as boot recovery, and pins the config file the
// item was enabled with.
func autostartApp(configPath string) (*autostart.App, error) {
	// Get the executable path
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	// Resolve symlinks if any
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	args := []string{execPath, "run", "--boot"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}

	return &autostart.App{
		Name:        "alarm-clock",
		DisplayName: "Alarm Clock",
		Exec:        args,
	}, nil
}

// setupAutostart makes the login item match enable. An enabled item is
// rewritten so a changed binary or config path takes effect.
func setupAutostart(enable bool, configPath string) error {
	app, err := autostartApp(configPath)
	if err != nil {
		return err
	}

	switch {
	case enable:
		if err := app.Enable(); err != nil {
			log.Printf("[BOOT] Failed to enable autostart: %v", err)
			return err
		}
		log.Printf("[BOOT] Autostart enabled: %v", app.Exec)
	case app.IsEnabled():
		if err := app.Disable(); err != nil {
			log.Printf("[BOOT] Failed to disable autostart: %v", err)
			return err
		}
		log.Println("[BOOT] Autostart disabled")
	}
	return nil
}
