// Package templates holds the HTML fragments returned to HTMX clients.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/ferry/internal/core"
)

// PollInterval is how often a running operation fragment re-polls itself.
const PollInterval = "every 1s"

// ErrorAlert renders a dismissible error box with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Code: %s</p>`, templ.EscapeString(code))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// OperationStatus renders one operation's progress. While the operation is
// running the fragment replaces itself by polling the status endpoint.
func OperationStatus(rec core.OperationRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, operationStatus(rec))
		return err
	})
}

// OperationList renders a table of operations, newest first.
func OperationList(recs []core.OperationRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		if len(recs) == 0 {
			b.WriteString(`<p class="empty">No transfers yet.</p>`)
			_, err := io.WriteString(w, b.String())
			return err
		}
		b.WriteString(`<table class="operations"><thead><tr>`)
		b.WriteString(`<th>Source</th><th>Target</th><th>Status</th><th>Records</th><th>Message</th>`)
		b.WriteString(`</tr></thead><tbody>`)
		for _, rec := range recs {
			fmt.Fprintf(&b, `<tr class="status-%s"><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
				templ.EscapeString(string(rec.Status)),
				templ.EscapeString(rec.Source),
				templ.EscapeString(rec.Target),
				templ.EscapeString(string(rec.Status)),
				rec.RecordsProcessed,
				templ.EscapeString(rec.Message),
			)
		}
		b.WriteString(`</tbody></table>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func operationStatus(rec core.OperationRecord) string {
	var b strings.Builder

	id := templ.EscapeString(rec.OperationID)
	fmt.Fprintf(&b, `<div id="op-%s" class="operation status-%s"`, id, templ.EscapeString(string(rec.Status)))
	if !rec.Status.Terminal() {
		fmt.Fprintf(&b, ` hx-get="/api/ingest?operationId=%s" hx-trigger="%s" hx-swap="outerHTML"`, id, PollInterval)
	}
	b.WriteString(`>`)

	fmt.Fprintf(&b, `<div class="operation-route">%s &rarr; %s</div>`,
		templ.EscapeString(rec.Source), templ.EscapeString(rec.Target))

	pct := rec.PercentComplete
	if rec.Status == core.StatusCompleted {
		pct = 100
	}
	fmt.Fprintf(&b, `<progress max="100" value="%.0f"></progress>`, pct)

	counts := fmt.Sprintf("%d records", rec.RecordsProcessed)
	if rec.TotalRecords > 0 {
		counts = fmt.Sprintf("%d of %d records", rec.RecordsProcessed, rec.TotalRecords)
	}
	if rec.RecordsPerSecond > 0 {
		counts += fmt.Sprintf(" (%.0f/s)", rec.RecordsPerSecond)
	}
	fmt.Fprintf(&b, `<div class="operation-counts">%s</div>`, templ.EscapeString(counts))

	if rec.Message != "" {
		fmt.Fprintf(&b, `<div class="operation-message">%s</div>`, templ.EscapeString(rec.Message))
	}
	if !rec.Status.Terminal() {
		fmt.Fprintf(&b, `<button hx-post="/api/ingest/%s/cancel" hx-swap="none">Cancel</button>`, id)
	}
	b.WriteString(`</div>`)
	return b.String()
}
