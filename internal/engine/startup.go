package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/kalambet/folio/internal/ollama"
)

// ErrEngineDown is returned when the local daemon does not answer.
var ErrEngineDown = errors.New("local inference engine is not running; start it with: ollama serve")

// EnsureReady makes sure a local backend can serve b.Model and every model in
// also, pulling whatever is missing and reporting progress to w. Hosted
// backends are always ready.
func EnsureReady(ctx context.Context, b *Backend, w io.Writer, also ...string) error {
	if b == nil || b.Local == nil {
		return nil
	}
	if !b.Local.IsRunning(ctx) {
		return ErrEngineDown
	}
	for _, model := range requiredModels(b.Model, also) {
		if !b.Local.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: pulling...\n", model)
			if err := b.Local.PullModel(ctx, model, progressTo(w)); err != nil {
				return fmt.Errorf("pulling model %s: %w", model, err)
			}
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

// requiredModels lists primary first, then the distinct non-empty extras.
func requiredModels(primary string, also []string) []string {
	out := []string{primary}
	for _, m := range also {
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// progressTo prints one line per progress event, skipping repeats of the
// same status and percentage.
func progressTo(w io.Writer) func(ollama.PullProgress) {
	var last string
	return func(p ollama.PullProgress) {
		line := p.Status
		if p.Total > 0 {
			line = fmt.Sprintf("%s %d%%", p.Status, p.Completed*100/p.Total)
		}
		if line == last {
			return
		}
		last = line
		fmt.Fprintf(w, "  %s\n", line)
	}
}
