package cli

import (
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Sandbox backend: %s (fallback: %s), lease: %s\n",
				cfg.Sandbox.Backend, cfg.Sandbox.FallbackBackend, cfg.Sandbox.Lease())
			fmt.Fprintf(out, "Transport: %s, metrics: %v\n", cfg.Server.Transport, cfg.Server.MetricsEnabled)

			for _, tool := range []string{"git", "gh"} {
				if path, lookErr := exec.LookPath(tool); lookErr == nil {
					fmt.Fprintf(out, "%s: %s\n", tool, path)
				} else {
					fmt.Fprintf(out, "Warning: %s not found on PATH, publication will fail inside local environments\n", tool)
				}
			}

			if runnerURL := strings.TrimSpace(cfg.Sandbox.RunnerURL); runnerURL != "" {
				fmt.Fprintf(out, "Sandbox runner: %s\n", pingRunner(runnerURL))
			}

			if cfg.Git.Token == "" {
				fmt.Fprintln(out, "Warning: no git token configured, sessions will not push or open pull requests")
			}
			return nil
		},
	}
}

// pingRunner reports whether the configured cloud runner answers HTTP
// at all; any response counts as reachable.
func pingRunner(runnerURL string) string {
	client := &http.Client{Timeout: 3 * time.Second}
	res, err := client.Get(runnerURL)
	if err != nil {
		return fmt.Sprintf("unreachable (%v)", err)
	}
	defer res.Body.Close()
	return fmt.Sprintf("reachable (status %d)", res.StatusCode)
}
