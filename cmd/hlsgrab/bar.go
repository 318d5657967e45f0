package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	hlsprogress "github.com/hollowness-inside/hlsgrab/pkg/progress"
)

// bar draws progress events as a single redrawn terminal line.
type bar struct {
	out   io.Writer
	model progress.Model
}

func newBar(out io.Writer) *bar {
	return &bar{
		out:   out,
		model: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (b *bar) sink(ev hlsprogress.Event) {
	line := fmt.Sprintf("%s %5.1f%% %s", b.model.ViewAs(ev.Percentage/100), ev.Percentage, ev.Message)
	fmt.Fprint(b.out, "\r\x1b[K"+strings.TrimRight(line, " "))
	if ev.Terminal {
		fmt.Fprintln(b.out)
	}
}
