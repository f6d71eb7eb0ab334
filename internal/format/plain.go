package format

import (
	"fmt"
	"strings"

	"pkt.systems/penroseide/schema"
)

// Line markers used by the console view.
const (
	ErrorMarker    = "!"
	ProgressMarker = "~"
	StatusMarker   = "*"
)

// PlainRenderer formats session events as plain text lines.
type PlainRenderer struct{}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

// FormatEvent converts a session event into the lines that changed.
func (p *PlainRenderer) FormatEvent(event schema.SessionEvent) []string {
	snap := event.Snapshot
	switch event.Type {
	case schema.SessionEventConnection:
		if snap.LastError != "" {
			return []string{ErrorMarker + " " + snap.LastError}
		}
		return []string{StatusMarker + " connected"}
	case schema.SessionEventCompileError:
		return markLines(ErrorMarker, splitLines(snap.CompileError))
	case schema.SessionEventProgress:
		switch {
		case snap.Busy():
			return []string{ProgressMarker + " " + schema.OptimizingText}
		case snap.Converged:
			return []string{ProgressMarker + " converged"}
		default:
			return []string{ProgressMarker + " frame received"}
		}
	case schema.SessionEventAutostep:
		return []string{StatusMarker + " " + snap.AutostepLabel()}
	case schema.SessionEventProgram:
		if snap.ProgramChanged() {
			return nil
		}
		return []string{StatusMarker + fmt.Sprintf(" program submitted (generation %d)", snap.Generation)}
	case schema.SessionEventSettings:
		return []string{StatusMarker + " " + formatSettings(snap)}
	default:
		return nil
	}
}

// FrameLine describes one rendered frame.
func FrameLine(n, size int, locked bool) string {
	return fmt.Sprintf("%s frame %d (%d bytes, %s)", ProgressMarker, n, size, onOff(locked, "locked", "editable"))
}

// StatusLines renders the full status view: banners first, then controls.
func StatusLines(snap schema.SessionSnapshot) []string {
	var lines []string
	if snap.LastError != "" {
		lines = append(lines, ErrorMarker+" "+snap.LastError)
	}
	if snap.CompileError != "" {
		lines = append(lines, markLines(ErrorMarker, splitLines(snap.CompileError))...)
	}
	if snap.Busy() {
		lines = append(lines, ProgressMarker+" "+schema.OptimizingText)
	}
	lines = append(lines,
		fmt.Sprintf("connection: %s", onOff(snap.Connected, "connected", "disconnected")),
		fmt.Sprintf("rendered: %s  converged: %s  generation: %d",
			onOff(snap.HasRenderedOnce, "yes", "no"), onOff(snap.Converged, "yes", "no"), snap.Generation),
		fmt.Sprintf("program: %s", onOff(snap.ProgramChanged(), "modified", "unchanged")),
		formatSettings(snap),
		"controls:",
		control(snap.BuildLabel(), snap.CompileBlocker()),
		control("resample", snap.ResampleBlocker()),
		control(snap.AutostepLabel(), snap.StepBlocker()),
		control("download", snap.DownloadBlocker()),
	)
	if snap.Settings.Debug {
		lines = append(lines,
			control("step", snap.StepBlocker()),
			control("inspector "+onOff(snap.ShowInspector, "(shown)", "(hidden)"), ""),
		)
	}
	return lines
}

func formatSettings(snap schema.SessionSnapshot) string {
	return fmt.Sprintf("debug: %s  play on build: %s  inspector: %s",
		onOff(snap.Settings.Debug, "on", "off"),
		onOff(snap.Settings.PlayOnBuild, "on", "off"),
		onOff(snap.ShowInspector, "shown", "hidden"))
}

func control(label, blocker string) string {
	if blocker == "" {
		return "  " + label
	}
	return fmt.Sprintf("  %s (disabled: %s)", label, blocker)
}

func onOff(value bool, yes, no string) string {
	if value {
		return yes
	}
	return no
}

func splitLines(text string) []string {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func markLines(marker string, lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, marker+" "+line)
	}
	return out
}
