// Package main implements calmctl, the operator CLI for calmd: generic tool
// dispatch over the RPC endpoint, a daemon subcommand implementing spec.md
// section 6's process-control contract (PID-file is_running, exec-in-a-new-
// session spawn, SIGTERM-then-SIGKILL shutdown), and a few subcommands
// (gate, counter) wired directly to their internal packages rather than
// round-tripping through the daemon, mirroring the original system's
// standalone server/gate/counter CLIs (SPEC_FULL.md section 5).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"calmd/internal/config"
	"calmd/internal/counter"
	"calmd/internal/daemonrt"
	"calmd/internal/health"
)

var (
	configPath string
	jsonArgs   string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "calmctl",
	Short: "calmctl drives a running calmd daemon and its local state",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: {home}/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	rootCmd.AddCommand(callCmd, pingCmd, gateCmd, counterCmd, daemonCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		defaults := config.DefaultConfig()
		path = defaults.Home + "/config.yaml"
	}
	return config.Load(path)
}

// --- call: generic dispatcher RPC ------------------------------------------

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool on the running daemon via its RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var arguments map[string]interface{}
		if jsonArgs != "" {
			if err := json.Unmarshal([]byte(jsonArgs), &arguments); err != nil {
				return fmt.Errorf("parse --json: %w", err)
			}
		}

		envelope, err := rpcCall(cfg, args[0], arguments)
		if err != nil {
			return err
		}
		return printJSON(envelope)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		envelope, err := rpcCall(cfg, "ping", nil)
		if err != nil {
			return err
		}
		return printJSON(envelope)
	},
}

func init() {
	callCmd.Flags().StringVar(&jsonArgs, "json", "", "JSON object of tool arguments")
}

func rpcCall(cfg *config.Config, tool string, arguments map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]interface{}{"tool": tool, "arguments": arguments})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/api/call", cfg.Server.Host, cfg.Server.Port)
	client := &http.Client{Timeout: cfg.CallTimeoutDuration() + 5*time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reach calmd at %s: %w (is the daemon running?)", url, err)
	}
	defer resp.Body.Close()

	var envelope map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return envelope, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// --- gate: evaluate a transition's requirements directly -------------------

var gateCmd = &cobra.Command{
	Use:   "gate <transition>",
	Short: "Evaluate a phase transition's gate requirements against the local repo",
	Long:  "Runs internal/review.CheckGate directly against the configured requirements, without going through the daemon.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		d, cleanup, err := daemonrt.Build(cfg)
		if err != nil {
			return fmt.Errorf("build local dispatcher: %w", err)
		}
		defer cleanup()

		transition := args[0]
		reqs, ok := d.Gate[transition]
		if !ok {
			return fmt.Errorf("no gate requirements configured for transition %q", transition)
		}

		result, err := d.Review.CheckGate(transition, reqs)
		if err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Passed {
			os.Exit(1)
		}
		return nil
	},
}

// --- counter: inspect/mutate the per-session tool counter file -------------

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Inspect or mutate the per-session tool-invocation counter file",
}

var counterGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current tool count and session id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		count, sessionID := counter.Read(cfg.ToolCountFile())
		return printJSON(map[string]interface{}{"count": count, "session_id": sessionID})
	},
}

var counterResetCmd = &cobra.Command{
	Use:   "reset <session_id>",
	Short: "Reset the tool count for a session id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return counter.Reset(cfg.ToolCountFile(), args[0])
	},
}

func init() {
	counterCmd.AddCommand(counterGetCmd, counterResetCmd)
}

// --- daemon: start/stop/status process control (spec.md section 6) --------

var daemonBinPath string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start, stop, or check the calmd daemon process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start calmd as a detached background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if running, pid := health.IsRunning(cfg.PIDFile()); running {
			fmt.Printf("calmd is already running (pid %d)\n", pid)
			return nil
		}
		if err := cfg.EnsureDirs(); err != nil {
			return fmt.Errorf("create state directories: %w", err)
		}

		bin, err := resolveDaemonBinary()
		if err != nil {
			return err
		}

		logFile, err := os.OpenFile(cfg.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.LogFile(), err)
		}
		defer logFile.Close()

		daemonArgs := []string{}
		if configPath != "" {
			daemonArgs = append(daemonArgs, "--config", configPath)
		}

		child := exec.Command(bin, daemonArgs...)
		child.Stdout = logFile
		child.Stderr = logFile
		child.Stdin = nil
		// Spawn via exec in a new session (spec.md section 6): the daemon
		// must never be forked off a parent that may have already loaded
		// an accelerator runtime. setsid detaches it from calmctl's
		// controlling terminal and session, matching the original's
		// start_new_session=True.
		child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

		if err := child.Start(); err != nil {
			return fmt.Errorf("start calmd: %w", err)
		}
		// Release our handle so calmctl doesn't reap the daemon's exit
		// status; the daemon is a long-lived process calmctl does not own.
		if err := child.Process.Release(); err != nil {
			return fmt.Errorf("detach calmd: %w", err)
		}

		fmt.Printf("calmd started with pid %d\n", child.Process.Pid)
		fmt.Printf("log file: %s\n", cfg.LogFile())
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running calmd daemon (SIGTERM, then SIGKILL after 5s)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		running, pid := health.IsRunning(cfg.PIDFile())
		if !running {
			fmt.Println("calmd is not running")
			return nil
		}
		if err := health.Stop(cfg.PIDFile(), 5*time.Second); err != nil {
			return fmt.Errorf("stop calmd: %w", err)
		}
		fmt.Printf("calmd (pid %d) stopped\n", pid)
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether calmd is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		running, pid := health.IsRunning(cfg.PIDFile())
		return printJSON(map[string]interface{}{
			"running":  running,
			"pid":      pid,
			"pid_file": cfg.PIDFile(),
			"log_file": cfg.LogFile(),
		})
	},
}

func init() {
	daemonStartCmd.Flags().StringVar(&daemonBinPath, "bin", "", "path to the calmd binary (default: looked up next to calmctl, then $PATH)")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
}

// resolveDaemonBinary finds the calmd binary to exec: an explicit --bin
// flag, then a "calmd" sibling of the running calmctl executable (the
// normal install layout), then $PATH.
func resolveDaemonBinary() (string, error) {
	if daemonBinPath != "" {
		return daemonBinPath, nil
	}

	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "calmd")
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}

	if path, err := exec.LookPath("calmd"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("calmd binary not found next to calmctl or on $PATH (use --bin to specify it explicitly)")
}
