package deliver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"gaceta/internal/core"
)

func init() {
	Register("applemail", func(name string, settings Settings) (core.Deliverer, error) {
		return NewAppleMailDeliverer(name, settings)
	})
}

// AppleMailDeliverer drives the local Mail application through osascript
// instead of speaking SMTP itself. Useful when the sending account is only
// configured in the desktop client. The payload is staged in a temp file
// because AppleScript attaches by path.
type AppleMailDeliverer struct {
	name    string
	to      string
	subject string
	body    string
}

func NewAppleMailDeliverer(name string, settings Settings) (*AppleMailDeliverer, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("applemail delivery %s: only available on macOS", name)
	}

	subject := settings.Subject
	if subject == "" {
		subject = "New issue"
	}
	body := settings.Body
	if body == "" {
		body = "Here is the latest issue."
	}

	return &AppleMailDeliverer{
		name:    name,
		to:      settings.To,
		subject: subject,
		body:    body,
	}, nil
}

func (d *AppleMailDeliverer) Name() string {
	return d.name
}

func (d *AppleMailDeliverer) Deliver(ctx context.Context, id string, payload []byte) error {
	dir, err := os.MkdirTemp("", "gaceta-")
	if err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}
	defer os.RemoveAll(dir)

	// The attachment keeps the identifier as its filename so the recipient
	// sees the artifact name, not a temp name.
	attachment := filepath.Join(dir, filepath.Base(id))
	if err := os.WriteFile(attachment, payload, 0o600); err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}

	script := buildSendScript(d.to, d.subject, d.body, attachment)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &core.DeliveryError{
			Target: d.name,
			ID:     id,
			Err:    fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out))),
		}
	}

	return nil
}

func buildSendScript(to, subject, body, attachment string) string {
	var b strings.Builder
	b.WriteString("tell application \"Mail\"\n")
	fmt.Fprintf(&b, "set newMessage to make new outgoing message with properties {subject:%s, content:%s, visible:false}\n",
		appleScriptString(subject), appleScriptString(body))
	b.WriteString("tell newMessage\n")
	fmt.Fprintf(&b, "make new to recipient at end of to recipients with properties {address:%s}\n", appleScriptString(to))
	fmt.Fprintf(&b, "make new attachment with properties {file name:POSIX file %s} at after the last paragraph of content\n", appleScriptString(attachment))
	b.WriteString("end tell\n")
	b.WriteString("send newMessage\n")
	b.WriteString("end tell")
	return b.String()
}

// appleScriptString quotes a value as an AppleScript string literal.
func appleScriptString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
