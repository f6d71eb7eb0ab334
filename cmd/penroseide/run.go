package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pkt.systems/penroseide"
	"pkt.systems/penroseide/internal/appconfig"
	"pkt.systems/penroseide/internal/channel"
	"pkt.systems/penroseide/internal/command"
	"pkt.systems/penroseide/internal/format"
	"pkt.systems/penroseide/internal/frame"
	"pkt.systems/pslog"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	var endpoint string
	var programPath string
	var disableAuditTrails bool
	var echoFrames bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive editing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Server.Endpoint = endpoint
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			if echoFrames {
				cfg.Render.EchoFrames = true
			}
			return runSession(cmd.Context(), cfg, sessionIO{
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
				program: programPath,
			}, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "override server.endpoint")
	cmd.Flags().StringVarP(&programPath, "program", "p", "", "load the draft program from a file")
	cmd.Flags().BoolVar(&echoFrames, "echo-frames", false, "print a line for every rendered frame")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable command audit logging")
	return cmd
}

type sessionIO struct {
	in      io.Reader
	out     io.Writer
	program string
}

func runSession(ctx context.Context, cfg appconfig.Config, sio sessionIO, logger pslog.Logger) error {
	out := &lockedWriter{w: sio.out}
	recorder, err := frame.NewRecorder(cfg.Render.OutputDir, logger)
	if err != nil {
		return err
	}
	if cfg.Render.EchoFrames {
		recorder.OnRender(frameEcho(out))
	}
	client, err := penroseide.New(clientConfig(cfg), penroseide.Deps{
		Renderer: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	events, unsubscribe := client.Subscribe()
	var viewDone sync.WaitGroup
	viewDone.Add(1)
	go func() {
		defer viewDone.Done()
		renderer := format.NewPlainRenderer()
		for event := range events {
			for _, line := range renderer.FormatEvent(event) {
				out.Println(line)
			}
		}
	}()

	handler := command.NewHandler(client, out, command.HandlerConfig{
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	})
	if sio.program != "" {
		if _, err := handler.Handle(ctx, "/load "+sio.program); err != nil {
			out.Println("error: " + err.Error())
		}
	}
	out.Println(fmt.Sprintf("session %s on %s; /help lists commands", client.ID(), client.Endpoint()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(sio.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			handled, err := handler.Handle(ctx, line)
			if errors.Is(err, command.ErrQuit) {
				break loop
			}
			if !handled && strings.TrimSpace(line) != "" {
				err = handler.AppendLine(ctx, line)
			}
			if err != nil {
				out.Println("error: " + err.Error())
			}
		}
	}

	cancel()
	err = <-runErr
	unsubscribe()
	viewDone.Wait()
	return err
}

// frameEcho returns a recorder listener that prints each frame. Frames are
// rendered on the client loop goroutine, so the counter needs no lock.
func frameEcho(out *lockedWriter) frame.Listener {
	n := 0
	return func(payload []byte, locked bool) {
		n++
		out.Println(format.FrameLine(n, len(payload), locked))
	}
}

func clientConfig(cfg appconfig.Config) penroseide.Config {
	return penroseide.Config{
		Channel: channel.Config{
			Endpoint:         cfg.Server.Endpoint,
			HandshakeTimeout: cfg.Server.HandshakeTimeout(),
			WriteTimeout:     cfg.Server.WriteTimeout(),
			PingInterval:     cfg.Server.PingInterval(),
			ReadLimit:        cfg.Server.ReadLimitBytes,
			Reconnect: channel.ReconnectConfig{
				InitialInterval:  cfg.Reconnect.InitialInterval(),
				MaxInterval:      cfg.Reconnect.MaxInterval(),
				Multiplier:       cfg.Reconnect.Multiplier,
				Randomization:    cfg.Reconnect.Randomization,
				UnreachableAfter: cfg.Reconnect.UnreachableAfter,
			},
		},
		StateDir:        cfg.StateDir,
		DraftDelay:      cfg.Persist.DraftDelay(),
		SettingsDelay:   cfg.Persist.SettingsDelay(),
		JointCompileRun: cfg.Protocol.JointCompileRun,
		DropStale:       cfg.Protocol.DropStale,
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) Println(line string) {
	_, _ = fmt.Fprintln(l, line)
}
