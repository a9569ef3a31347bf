package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

type FeedbackKind int

const (
	// FeedbackAccepted: the tap is durably queued.
	FeedbackAccepted FeedbackKind = iota + 1
	// FeedbackDuplicate: queued, but likely inside the anti-passback window.
	FeedbackDuplicate
	// FeedbackInvalid: the reader produced something that is not a badge id.
	FeedbackInvalid
	// FeedbackFailed: the tap could not be persisted and was not recorded.
	FeedbackFailed
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackAccepted:
		return "accepted"
	case FeedbackDuplicate:
		return "duplicate"
	case FeedbackInvalid:
		return "invalid"
	case FeedbackFailed:
		return "failed"
	}
	return "unknown"
}

// Feedback is shown to the person at the reader right after a tap.
type Feedback struct {
	Kind      FeedbackKind
	BadgeID   string
	Direction types.Direction
	LocalID   string
	At        time.Time
	Err       error
}

type Notifier interface {
	Notify(Feedback)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Feedback)

func (f NotifierFunc) Notify(fb Feedback) { f(fb) }

// Console renders feedback lines for a kiosk terminal. Colours are dropped
// automatically when w is not a terminal.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	loc *time.Location

	clock   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	subtle  lipgloss.Style
	heading lipgloss.Style
}

func NewConsole(w io.Writer, loc *time.Location) *Console {
	if loc == nil {
		loc = time.Local
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		loc:     loc,
		clock:   r.NewStyle().Faint(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		subtle:  r.NewStyle().Foreground(lipgloss.Color("8")),
		heading: r.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 2),
	}
}

// Banner prints the startup box.
func (c *Console) Banner(deviceID, server string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := fmt.Sprintf("BADGE READER AGENT\nDevice: %s\nServer: %s\nTap your badge to clock in or out", deviceID, server)
	fmt.Fprintln(c.w, c.heading.Render(body))
}

func (c *Console) Notify(fb Feedback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.clock.Render(fb.At.In(c.loc).Format("15:04:05"))
	var line string
	switch fb.Kind {
	case FeedbackAccepted:
		line = c.ok.Render(greeting(fb.Direction)) + " " + c.subtle.Render(fb.BadgeID)
	case FeedbackDuplicate:
		line = c.warn.Render("Already recorded") + " " + c.subtle.Render(fb.BadgeID)
	case FeedbackInvalid:
		line = c.warn.Render("Unreadable badge, please tap again")
	case FeedbackFailed:
		line = c.fail.Render("NOT RECORDED, please tap again")
		if fb.Err != nil {
			line += " " + c.subtle.Render(fb.Err.Error())
		}
	default:
		return
	}
	fmt.Fprintf(c.w, "%s %s\n", ts, line)
}

// Warn prints an operator notice.
func (c *Console) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, c.warn.Render("! "+msg))
}

func greeting(d types.Direction) string {
	if d == types.DirectionDeparture {
		return "Goodbye"
	}
	return "Welcome"
}
