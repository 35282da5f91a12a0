package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/folio/internal/diff"
)

// SGR parameters for the few styles the CLI uses.
const (
	sgrBold   = "1"
	sgrRed    = "31"
	sgrGreen  = "32"
	sgrYellow = "33"
	sgrCyan   = "36"
)

func paint(sgr, text string) string {
	if noColor {
		return text
	}
	return "\033[" + sgr + "m" + text + "\033[0m"
}

// tone is a status line style: a leading mark and its color.
type tone struct {
	mark string
	sgr  string
}

var (
	toneOK   = tone{"✓", sgrGreen}
	toneFail = tone{"✗", sgrRed}
	toneWarn = tone{"⚠", sgrYellow}
	toneStep = tone{"→", sgrCyan}
)

// notify writes a status line to stderr so stdout stays machine-readable.
func notify(t tone, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(t.sgr, t.mark+" "+fmt.Sprintf(format, args...)))
}

// fieldf writes an indented "label: value" status row to stderr.
func fieldf(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(sgrBold, label+":"), fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printChanges renders one block per changed path: text fields as colored
// line hunks, everything else as before → after.
func printChanges(w io.Writer, changes []diff.Change) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "  (no changes)")
		return
	}
	for _, c := range changes {
		fmt.Fprintf(w, "  %s\n", paint(sgrBold, c.Path))
		if len(c.Hunks) == 0 {
			fmt.Fprintf(w, "    %s → %s\n", short(c.Before), short(c.After))
			continue
		}
		for line := range strings.Lines(diff.Unified(c.Hunks)) {
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "+ ") {
				line = paint(sgrGreen, line)
			} else if strings.HasPrefix(line, "- ") {
				line = paint(sgrRed, line)
			}
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

const shortLimit = 60

// short renders v as compact JSON cut to shortLimit runes.
func short(v any) string {
	if v == nil {
		return "∅"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	s := string(b)
	if utf8.RuneCountInString(s) <= shortLimit {
		return s
	}
	return string([]rune(s)[:shortLimit]) + "..."
}
