package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverStopGrace time.Duration

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Control supervised server processes",
	}

	serverStartCmd = &cobra.Command{
		Use:   "start [slug]",
		Short: "Start a registered server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerStart,
	}

	serverStopCmd = &cobra.Command{
		Use:   "stop [slug]",
		Short: "Stop a running server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerStop,
	}

	serverRestartCmd = &cobra.Command{
		Use:   "restart [slug]",
		Short: "Restart a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerRestart,
	}

	serverSummaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "Show a one-line status for every known server",
		RunE:  runServerSummary,
	}

	serverInfoCmd = &cobra.Command{
		Use:   "info [slug]",
		Short: "Show detailed status for one server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerInfo,
	}

	serverSetEnvCmd = &cobra.Command{
		Use:   "set-env [slug] KEY=VALUE...",
		Short: "Update a server's environment; applies on next start",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runServerSetEnv,
	}
)

func init() {
	serverStopCmd.Flags().DurationVar(&serverStopGrace, "grace", 10*time.Second, "grace period before force-kill")

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverRestartCmd)
	serverCmd.AddCommand(serverSummaryCmd)
	serverCmd.AddCommand(serverInfoCmd)
	serverCmd.AddCommand(serverSetEnvCmd)
}

func runServerStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return a.supervisor.Start(args[0])
}

func runServerStop(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return a.supervisor.Stop(args[0], serverStopGrace)
}

func runServerRestart(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return a.supervisor.Restart(args[0])
}

func runServerSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, row := range a.supervisor.Summary() {
		fmt.Printf("%-20s %-10s %-10s restarts=%-3d pid=%-7d cpu=%.1f%% ram=%.1fMB\n",
			row.Slug, row.State, row.HealthState, row.Restarts, row.PID, row.CPUPercent, row.RAMMB)
	}
	return nil
}

func runServerInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.supervisor.Info(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("slug:              %s\n", info.Slug)
	fmt.Printf("state:             %s\n", info.State)
	fmt.Printf("health:            %s\n", info.HealthState)
	fmt.Printf("pid:               %d\n", info.PID)
	fmt.Printf("uptime:            %ds\n", info.UptimeSec)
	fmt.Printf("restarts:          %d (last 10m: %d)\n", info.Restarts, info.RestartsLast10m)
	fmt.Printf("transport:         %s\n", info.Transport)
	fmt.Printf("handshakeReady:    %v\n", info.HandshakeReady)
	fmt.Printf("missedPings:       %d\n", info.MissedPings)
	fmt.Printf("logPath:           %s\n", info.LogPath)
	return nil
}

func runServerSetEnv(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	env := map[string]string{}
	for _, pair := range args[1:] {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("server set-env: malformed KEY=VALUE pair %q", pair)
		}
		env[k] = v
	}
	return a.supervisor.SetEnv(args[0], env)
}
