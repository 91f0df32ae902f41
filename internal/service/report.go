package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"storyweaver/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

func logProgress(sum domain.Summary) {
	log.Infof("📊 Progress: %d/%d done (%d completed, %d failed, %d pending), success rate %.1f%%",
		sum.Completed+sum.Failed, sum.Total, sum.Completed, sum.Failed, sum.Pending, sum.SuccessRate)
}

func logSummary(st *domain.QueueState) {
	sum := st.Summary()
	log.Info("📊 Run summary")
	log.Infof("   Total items:   %d", sum.Total)
	log.Infof("   Completed:     %d (%d without target edition)", sum.Completed, sum.NoTarget)
	log.Infof("   Failed:        %d", sum.Failed)
	log.Infof("   Pending:       %d", sum.Pending)
	log.Infof("   Excluded:      %d (unresolved catalog entries)", sum.Excluded)
	log.Infof("   Success rate:  %.1f%%", sum.SuccessRate)

	for _, item := range st.Failures() {
		log.Warnf("❌ %s (%s): %s", item.RemoteID, item.Slug, item.LastError)
	}
}

// WriteStatus prints a persisted queue for the status command
func WriteStatus(w io.Writer, st *domain.QueueState) {
	sum := st.Summary()
	fmt.Fprintf(w, "Run %s, updated %s\n", st.RunID, st.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  total=%d completed=%d failed=%d pending=%d no_target=%d excluded=%d cursor=%d success=%.1f%%\n",
		sum.Total, sum.Completed, sum.Failed, sum.Pending, sum.NoTarget, sum.Excluded, sum.Cursor, sum.SuccessRate)

	failures := st.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "Failures (%d):\n", len(failures))
	for _, item := range failures {
		fmt.Fprintf(w, "  %s\t%s\tattempts=%d\t%s\n", item.RemoteID, item.Slug, item.Attempts, item.LastError)
	}
}

// NewPromptHook asks the operator to clear an anti-bot challenge by hand.
// Answers are read line by line; anything but "skip" retries.
func NewPromptHook(in io.Reader, out io.Writer) AntiBotHook {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(ctx context.Context, item domain.QueueItem, cause error) bool {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			return false
		}
		fmt.Fprintf(out, "\n🚫 Anti-bot challenge for %s (%s): %v\n", item.RemoteID, item.Slug, cause)
		fmt.Fprint(out, "Solve it in a browser, then press Enter to retry or type 'skip': ")

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		return !strings.EqualFold(strings.TrimSpace(line), "skip")
	}
}
