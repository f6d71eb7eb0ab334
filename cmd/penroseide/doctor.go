package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/penroseide/internal/appconfig"
	"pkt.systems/penroseide/internal/channel"
	"pkt.systems/penroseide/internal/persist"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and server reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			var failures []error
			for _, dir := range []string{cfg.StateDir, cfg.Render.OutputDir} {
				if err := checkWritable(dir); err != nil {
					logger.Warn("doctor directory not writable", "dir", dir, "err", err)
					failures = append(failures, err)
					continue
				}
				logger.Info("doctor directory ok", "dir", dir)
			}

			if timeout <= 0 {
				timeout = cfg.Server.HandshakeTimeout()
			}
			if err := channel.Probe(cmd.Context(), cfg.Server.Endpoint, timeout); err != nil {
				logger.Warn("doctor server unreachable", "endpoint", cfg.Server.Endpoint, "err", err)
				failures = append(failures, fmt.Errorf("server %s: %w", cfg.Server.Endpoint, err))
			} else {
				logger.Info("doctor server ok", "endpoint", cfg.Server.Endpoint)
			}

			if err := errors.Join(failures...); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "server probe timeout (default: handshake timeout)")
	return cmd
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor")
	if err := persist.WriteFileAtomic(probe, []byte("ok\n"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
