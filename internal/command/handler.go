package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"pkt.systems/penroseide/internal/format"
	"pkt.systems/penroseide/internal/logx"
	"pkt.systems/penroseide/schema"
)

// ErrQuit is returned by Handle when the user asked to leave the session.
var ErrQuit = errors.New("quit")

// Controller is the session surface the console drives.
type Controller interface {
	Edit(ctx context.Context, text string) error
	Compile(ctx context.Context) error
	CompileAndRun(ctx context.Context) error
	Build(ctx context.Context) error
	Step(ctx context.Context) error
	Resample(ctx context.Context) error
	ToggleAutostep(ctx context.Context) error
	ToggleSetting(ctx context.Context, name schema.SettingName) error
	ToggleInspector(ctx context.Context) error
	Download(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (schema.SessionSnapshot, error)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	DisableAuditLogging bool
	// ReadFile loads programs for /load; defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Handler routes console input to session operations.
type Handler struct {
	ctrl Controller
	out  io.Writer
	cfg  HandlerConfig
}

// NewHandler constructs a command handler writing replies to out.
func NewHandler(ctrl Controller, out io.Writer, cfg HandlerConfig) *Handler {
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	if out == nil {
		out = io.Discard
	}
	return &Handler{ctrl: ctrl, out: out, cfg: cfg}
}

// Handle executes input if it is a slash command and reports whether it was
// one. ErrQuit signals the end of the session.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.Ctx(ctx).With("input_len", len(input))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	var err error
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "compile":
		err = h.ctrl.Compile(ctx)
	case "play":
		err = h.ctrl.CompileAndRun(ctx)
	case "build":
		err = h.ctrl.Build(ctx)
	case "step":
		err = h.debugOnly(ctx, "step", h.ctrl.Step)
	case "resample":
		err = h.ctrl.Resample(ctx)
	case "autostep":
		err = h.ctrl.ToggleAutostep(ctx)
	case "download":
		err = h.handleDownload(ctx)
	case "debug":
		err = h.ctrl.ToggleSetting(ctx, schema.SettingDebug)
	case "playonbuild":
		err = h.ctrl.ToggleSetting(ctx, schema.SettingPlayOnBuild)
	case "toggle":
		err = h.handleToggle(ctx, cmd)
	case "inspector":
		err = h.debugOnly(ctx, "inspector", h.ctrl.ToggleInspector)
	case "edit":
		err = h.ctrl.Edit(ctx, unescape(cmd.Body))
	case "load":
		err = h.handleLoad(ctx, cmd)
	case "show":
		err = h.handleShow(ctx)
	case "clear":
		err = h.ctrl.Edit(ctx, "")
	case "status":
		err = h.handleStatus(ctx)
	case "help":
		h.printLines(helpLines())
	case "quit", "exit", "q":
		log.Info("command quit")
		return true, ErrQuit
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
	if err != nil {
		log.Warn("command slash failed", "err", err)
		return true, err
	}
	log.Debug("command slash completed")
	return true, nil
}

// AppendLine adds a plain console line to the end of the draft.
func (h *Handler) AppendLine(ctx context.Context, line string) error {
	snap, err := h.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	draft := snap.Draft
	if draft != "" && !strings.HasSuffix(draft, "\n") {
		draft += "\n"
	}
	return h.ctrl.Edit(ctx, draft+line+"\n")
}

func (h *Handler) debugOnly(ctx context.Context, name string, action func(context.Context) error) error {
	snap, err := h.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.Settings.Debug {
		return fmt.Errorf("%s: %w: debug mode is off (toggle with /debug)", name, schema.ErrActionDisabled)
	}
	return action(ctx)
}

func (h *Handler) handleToggle(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: /toggle <debug|playonbuild>")
	}
	name, ok := schema.NormalizeSettingName(cmd.Args[0])
	if !ok {
		return fmt.Errorf("%w: %q", schema.ErrInvalidSetting, cmd.Args[0])
	}
	return h.ctrl.ToggleSetting(ctx, name)
}

func (h *Handler) handleDownload(ctx context.Context) error {
	path, err := h.ctrl.Download(ctx)
	if err != nil {
		return err
	}
	h.printLines([]string{"frame saved to " + path})
	return nil
}

func (h *Handler) handleLoad(ctx context.Context, cmd Command) error {
	path := strings.TrimSpace(cmd.Body)
	if path == "" {
		return fmt.Errorf("usage: /load <file>")
	}
	data, err := h.cfg.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := h.ctrl.Edit(ctx, string(data)); err != nil {
		return err
	}
	h.printLines([]string{fmt.Sprintf("loaded %d bytes from %s", len(data), path)})
	return nil
}

func (h *Handler) handleShow(ctx context.Context) error {
	snap, err := h.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	body := strings.TrimSuffix(snap.Draft, "\n")
	if body == "" {
		h.printLines([]string{"(empty program)"})
		return nil
	}
	lines := strings.Split(body, "\n")
	width := len(strconv.Itoa(len(lines)))
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		out = append(out, fmt.Sprintf("%*d | %s", width, i+1, line))
	}
	h.printLines(out)
	return nil
}

func (h *Handler) handleStatus(ctx context.Context) error {
	snap, err := h.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	h.printLines(format.StatusLines(snap))
	return nil
}

func (h *Handler) printLines(lines []string) {
	for _, line := range lines {
		_, _ = fmt.Fprintln(h.out, line)
	}
}

func unescape(text string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(text)
}

func helpLines() []string {
	return []string{
		"Commands",
		"  /build - compile, or compile and play when play-on-build is on",
		"  /compile - compile the program",
		"  /play - compile and start autostep",
		"  /autostep - toggle continuous optimization",
		"  /resample - draw a new random layout",
		"  /download - export the current frame",
		"  /debug - toggle debug mode",
		"  /playonbuild - toggle play on build",
		"  /toggle <debug|playonbuild> - toggle a preference by name",
		"  /step - run one optimization step (debug mode)",
		"  /inspector - toggle the inspector (debug mode)",
		"  /edit <text> - replace the program (\\n for newlines)",
		"  /load <file> - replace the program with a file",
		"  /show - print the program",
		"  /clear - empty the program",
		"  /status - show session status",
		"  /help - show this help",
		"  /quit - leave the session",
		"Plain lines are appended to the program.",
	}
}
