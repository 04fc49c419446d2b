package mailer

import (
	"html"
	"strings"
)

// RenderTemplate substitutes {key} placeholders with values from data.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// Signature is the footer appended to every outgoing email.
type Signature struct {
	FromName       string
	Title          string
	BookingURL     string
	UnsubscribeURL string
}

const htmlLayout = `<div style="font-family:Inter,Arial,sans-serif;padding:24px">
  <div style="max-width:640px;margin:0 auto">
    <div style="font-size:14px;line-height:22px;white-space:pre-line">{body}</div>
    <div style="margin-top:24px;border-top:1px solid #e5e7eb"></div>
    <div style="margin-top:16px;font-size:13px;line-height:20px">
      <div>Best regards,</div>
      <div>{from_name}</div>{title_html}{booking_html}
    </div>{unsubscribe_html}
  </div>
</div>`

const textLayout = "{body}\n\nBest regards,\n{from_name}{title_text}{booking_text}{unsubscribe_text}"

// Render builds the HTML and plain-text bodies for a drafted email.
func Render(body string, sig Signature) (htmlBody, textBody string) {
	h := map[string]string{
		"body":             html.EscapeString(body),
		"from_name":        html.EscapeString(sig.FromName),
		"title_html":       "",
		"booking_html":     "",
		"unsubscribe_html": "",
	}
	t := map[string]string{
		"body":             body,
		"from_name":        sig.FromName,
		"title_text":       "",
		"booking_text":     "",
		"unsubscribe_text": "",
	}
	if sig.Title != "" {
		h["title_html"] = "\n      <div>" + html.EscapeString(sig.Title) + "</div>"
		t["title_text"] = "\n" + sig.Title
	}
	if sig.BookingURL != "" {
		u := html.EscapeString(sig.BookingURL)
		h["booking_html"] = "\n      <div style=\"margin-top:8px\"><a href=\"" + u + "\">Book a 15-minute call</a></div>"
		t["booking_text"] = "\n\nBook a 15-minute call: " + sig.BookingURL
	}
	if sig.UnsubscribeURL != "" {
		u := html.EscapeString(sig.UnsubscribeURL)
		h["unsubscribe_html"] = "\n    <div style=\"margin-top:24px;font-size:12px;color:#9ca3af\"><a href=\"" + u + "\">Unsubscribe</a></div>"
		t["unsubscribe_text"] = "\nUnsubscribe: " + sig.UnsubscribeURL
	}
	// body goes last so placeholder-like text inside it is left alone
	return renderBodyLast(htmlLayout, h), renderBodyLast(textLayout, t)
}

func renderBodyLast(layout string, data map[string]string) string {
	body := data["body"]
	rest := make(map[string]string, len(data)-1)
	for k, v := range data {
		if k != "body" {
			rest[k] = v
		}
	}
	return strings.Replace(RenderTemplate(layout, rest), "{body}", body, 1)
}
