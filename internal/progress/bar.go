package progress

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar renders the event stream as a terminal progress bar with structural
// events logged around it.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates a terminal progress sink.
func NewBar() *Bar {
	return &Bar{}
}

func (b *Bar) Publish(ev Event) {
	switch e := ev.(type) {
	case TableFound:
		slog.Info("Found table segment", "family", e.Family.String(), "table", e.Table)
		b.bar = progressbar.NewOptions64(10000,
			progressbar.OptionSetDescription(e.Family.String()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	case IndexCreation:
		slog.Info("Creating index", "family", e.Family.String(), "column", e.Column)
	case Counters:
		if b.bar == nil {
			b.bar = progressbar.NewOptions64(10000,
				progressbar.OptionSetDescription(e.Family.String()),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = b.bar.Set64(int64(e.Ratio * 10000))
		b.bar.Describe(fmt.Sprintf("%s: %d added, %d updated", e.Family.String(), e.Added, e.Updated))
	case DiskSpace:
		if e.Free < e.Threshold {
			slog.Warn("Disk space is running low", "free", e.Free, "threshold", e.Threshold)
		}
	case Summary:
		if b.bar != nil {
			_ = b.bar.Finish()
			b.bar = nil
		}
		slog.Info("Finished", "family", e.Family.String(), "added", e.Added, "updated", e.Updated)
	}
}
