package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// termRenderer prints the answer as it grows. On a terminal only the new
// suffix of each delta is written; elsewhere the text is printed once done.
type termRenderer struct {
	out     io.Writer
	live    bool
	printed int
	sources []models.Source
	debug   *models.Debug
}

func newTermRenderer(out io.Writer, live bool) *termRenderer {
	return &termRenderer{out: out, live: live}
}

func (r *termRenderer) OnMeta(meta models.MetaEvent) {
	r.sources = meta.Sources
	r.debug = meta.Debug
}

func (r *termRenderer) OnDelta(text string) {
	if !r.live || len(text) <= r.printed {
		return
	}
	fmt.Fprint(r.out, text[r.printed:])
	r.printed = len(text)
}

func (r *termRenderer) OnDone(text string) {
	if r.live {
		r.OnDelta(text)
	} else {
		fmt.Fprint(r.out, strings.TrimSpace(text))
	}
	fmt.Fprintln(r.out)
	r.printSources()
	r.printDebug()
}

// Interrupt ends an answer cut short. On a terminal the partial text is
// already on screen; otherwise it is printed now.
func (r *termRenderer) Interrupt(partial string) {
	if r.live {
		if r.printed > 0 {
			fmt.Fprintln(r.out)
		}
		return
	}
	if partial = strings.TrimSpace(partial); partial != "" {
		fmt.Fprintln(r.out, partial)
	}
}

func (r *termRenderer) printSources() {
	if len(r.sources) == 0 {
		return
	}
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Filename)
	}
	fmt.Fprintf(r.out, "Sources: %s\n", strings.Join(names, ", "))
}

func (r *termRenderer) printDebug() {
	if r.debug == nil {
		return
	}
	fmt.Fprintf(r.out, "\nDiagnostic (tech) :\n• status: %s\n• error: %s\n• incomplete: %s\n",
		r.debug.Status, r.debug.Error, r.debug.IncompleteReason)
}
