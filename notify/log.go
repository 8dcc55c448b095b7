package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goliatone/go-print"
	provision "github.com/goliatone/go-provision"
)

// LogNotifier writes each message as JSON instead of delivering it. Useful for
// local development.
type LogNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

var _ provision.Notifier = (*LogNotifier)(nil)

// NewLogNotifier writes to out, or stdout when out is nil.
func NewLogNotifier(out io.Writer) *LogNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &LogNotifier{out: out}
}

func (l *LogNotifier) SendEmail(ctx context.Context, _ string, msg provision.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintln(l.out, print.MaybePrettyJSON(msg))
	return err
}
