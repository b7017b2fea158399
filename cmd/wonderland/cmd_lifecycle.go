package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const pidFileName = "wonderland.pid"

var errNotRunning = errors.New("no running daemon")

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

// daemonRecord is written to the data dir while serve runs so the other
// commands can find the process and its API.
type daemonRecord struct {
	PID       int       `json:"pid"`
	Listen    string    `json:"listen,omitempty"`
	NetworkID string    `json:"networkId"`
	StartedAt time.Time `json:"startedAt"`
}

func writeDaemonRecord(dataDir string, rec daemonRecord) (string, error) {
	path := filepath.Join(dataDir, pidFileName)
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("write pid file: %w", err)
	}
	return path, nil
}

// readDaemonRecord loads the record and checks with signal 0 that the
// process is still alive.
func readDaemonRecord(dataDir string) (*daemonRecord, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w (pid file not found)", errNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("read pid file: %w", err)
	}
	var rec daemonRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return nil, fmt.Errorf("corrupt pid file %s", filepath.Join(dataDir, pidFileName))
	}
	if err := syscall.Kill(rec.PID, 0); err != nil {
		return nil, fmt.Errorf("%w (process %d is gone)", errNotRunning, rec.PID)
	}
	return &rec, nil
}

func signalDaemon(sig syscall.Signal) (int, error) {
	rec, err := readDaemonRecord(loadConfig().DataDir)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(rec.PID, sig); err != nil {
		return 0, fmt.Errorf("send %s to %d: %w", sig, rec.PID, err)
	}
	return rec.PID, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Printf("Sent SIGTERM to daemon (PID %d).\n", pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Printf("Sent SIGHUP to daemon (PID %d).\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running and healthy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readDaemonRecord(loadConfig().DataDir)
		if errors.Is(err, errNotRunning) {
			fmt.Println(warnColor.Sprint("stopped"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s  pid %d  network %s  up %s\n", okColor.Sprint("running"),
			rec.PID, keyColor.Sprint(rec.NetworkID), time.Since(rec.StartedAt).Round(time.Second))
		if rec.Listen == "" {
			fmt.Println(dimColor.Sprint("http api disabled"))
			return nil
		}
		var health struct {
			Status string `json:"status"`
		}
		if err := newAPIClient(rec.Listen).do(cmd.Context(), http.MethodGet, "/health", nil, nil, &health); err != nil {
			fmt.Println(errorColor.Sprintf("api %s unreachable: %v", rec.Listen, err))
			return nil
		}
		fmt.Printf("api %s %s\n", rec.Listen, okColor.Sprint(health.Status))
		return nil
	},
}
