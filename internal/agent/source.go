package agent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/capture"
)

// OpenSource returns a reader for a line-oriented tag source. "" and "-"
// mean stdin. Any other value is a path opened on first poll.
func OpenSource(source string) capture.Reader {
	if source == "" || source == "-" {
		return capture.NewLineReader(os.Stdin)
	}
	return &deviceReader{path: source}
}

// deviceReader reads from a device or file path. A character device that
// ends (the reader was unplugged) is reopened on the next poll; a regular
// file is read once.
type deviceReader struct {
	path string

	mu       sync.Mutex
	f        *os.File
	lr       *capture.LineReader
	finished bool
}

func (d *deviceReader) Poll(ctx context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return "", false, nil
	}
	if d.lr == nil {
		f, err := os.Open(d.path)
		if err != nil {
			return "", false, fmt.Errorf("open reader %s: %w", d.path, err)
		}
		d.f = f
		d.lr = capture.NewLineReader(f)
	}

	tag, present, err := d.lr.Poll(ctx)
	if err != nil && ctx.Err() == nil {
		regular := false
		if fi, statErr := d.f.Stat(); statErr == nil {
			regular = fi.Mode().IsRegular()
		}
		_ = d.f.Close()
		d.f, d.lr = nil, nil
		if regular {
			d.finished = true
			return "", false, nil
		}
	}
	return tag, present, err
}

func (d *deviceReader) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f, d.lr = nil, nil
	d.finished = true
	return err
}
