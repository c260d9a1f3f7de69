package coupon

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanMessage strips tags and decodes entities from a backend message.
// Commerce backends return strings like `Coupon &quot;X&quot; does not exist!`
// or wrap them in <strong>; the buyer should see plain text.
func CleanMessage(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Block-level tags separate words
			b.WriteByte(' ')
		}
	}
}
