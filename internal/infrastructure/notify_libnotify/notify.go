package notify_libnotify

import (
	"context"
	"os/exec"
)

// Notifier shows desktop notifications via notify-send. In soft mode a
// missing notify-send binary is not an error, output just disappears.
type Notifier struct {
	soft bool
}

func New() *Notifier     { return &Notifier{soft: false} }
func NewSoft() *Notifier { return &Notifier{soft: true} }

func (n *Notifier) ShowInfo(ctx context.Context, text string) error {
	return n.send(ctx, "normal", "GitLab Pipelines", text)
}

func (n *Notifier) ShowError(ctx context.Context, text string) error {
	return n.send(ctx, "critical", "GitLab Pipelines", text)
}

// Notify shows a pipeline status change with a link to the pipeline.
func (n *Notifier) Notify(ctx context.Context, title, body, url string) error {
	if url != "" {
		if body == "" {
			body = url
		} else {
			body = body + "\n" + url
		}
	}
	return n.send(ctx, "normal", title, body)
}

func (n *Notifier) send(ctx context.Context, urgency, title, body string) error {
	args := []string{
		"--app-name=pipeline-monitor",
		"--urgency=" + urgency,
		title, body,
	}

	cmd := exec.CommandContext(ctx, "notify-send", args...)
	if err := cmd.Run(); err != nil {
		if n.soft {
			return nil
		}
		return err
	}
	return nil
}
