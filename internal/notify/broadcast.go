package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/funnelbot/core/logger"
)

// Report summarises one broadcast run.
type Report struct {
	RunID     string
	Photo     bool
	Total     int
	Success   int
	Failed    int
	Blocked   int
	Cancelled bool
	Duration  time.Duration

	// FormatFailures counts rejections per format across all recipients.
	FormatFailures map[Format]int
	// Causes holds the first failure causes; More counts the rest.
	Causes []string
	More   int
}

// Summary is the one-line result shown to the admin.
func (r Report) Summary() string {
	what := "Sent"
	if r.Photo {
		what = "Photo sent"
	}
	return fmt.Sprintf("✅ %s to %d users | ❌ Failed: %d", what, r.Success, r.Failed)
}

// FormatBreakdown lists rejections per format level.
func (r Report) FormatBreakdown() string {
	return fmt.Sprintf("📊 Format Failures:\n• Markdown: %d\n• HTML: %d\n• Plain text: %d",
		r.FormatFailures[FormatMarkdown],
		r.FormatFailures[FormatHTML],
		r.FormatFailures[FormatPlain],
	)
}

// FailureDetails returns the truncated cause list or "" when there is none.
func (r Report) FailureDetails() string {
	if len(r.Causes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📝 Failure Details:\n")
	b.WriteString(strings.Join(r.Causes, "\n"))
	if r.More > 0 {
		fmt.Fprintf(&b, "\n+%d more", r.More)
	}
	return b.String()
}

// Broadcast sends msg to every id in order, spacing sends by the configured
// pace. Failures never abort the run; blocked recipients are counted as
// failures without a cause entry.
func (d *Dispatcher) Broadcast(ctx context.Context, ids []int64, msg Message) Report {
	rep := Report{
		RunID:          uuid.NewString(),
		Photo:          msg.Photo != nil,
		Total:          len(ids),
		FormatFailures: make(map[Format]int, len(DefaultFormats)),
	}
	start := time.Now()

	limit := rate.Inf
	if d.opts.Pace > 0 {
		limit = rate.Every(d.opts.Pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	runAttr := slog.String("run_id", rep.RunID)
	logger.Info(ctx, logger.CompNotify, "broadcast.start",
		runAttr,
		slog.Int("total", rep.Total),
		slog.Bool("photo", rep.Photo),
	)

	for i, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			rep.Cancelled = true
			break
		}

		del, err := d.Send(ctx, id, msg)
		for _, f := range del.Rejected {
			rep.FormatFailures[f]++
		}
		switch {
		case err == nil:
			rep.Success++
		case del.Blocked:
			rep.Failed++
			rep.Blocked++
		default:
			rep.Failed++
			if len(rep.Causes) < d.opts.MaxCauses {
				rep.Causes = append(rep.Causes, describeCause(id, err))
			} else {
				rep.More++
			}
		}

		if done := i + 1; done%d.opts.ProgressEvery == 0 {
			logger.Info(ctx, logger.CompNotify, "broadcast.progress",
				runAttr,
				slog.Int("sent", done),
				slog.Int("total", rep.Total),
			)
		}
		if ctx.Err() != nil {
			rep.Cancelled = i+1 < len(ids)
			break
		}
	}

	rep.Duration = time.Since(start)
	status := "ok"
	if rep.Cancelled {
		status = "cancelled"
	}
	logger.Info(ctx, logger.CompNotify, "broadcast.done",
		runAttr,
		slog.String("status", status),
		slog.Int("total", rep.Total),
		slog.Int("sent", rep.Success),
		slog.Int("failed", rep.Failed),
		slog.Int("blocked", rep.Blocked),
		slog.Duration("duration", logger.RoundMS(rep.Duration)),
	)
	return rep
}
