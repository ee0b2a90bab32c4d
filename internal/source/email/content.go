package email

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// PlainText returns a plain-text rendering of a raw RFC 5322 message
// suitable for pattern search. It prefers the text/plain body, then the
// tag-stripped text/html body, and falls back to the raw source when the
// message cannot be parsed or carries neither. It never fails.
func PlainText(raw []byte) string {
	parsed, err := ParseMessage(raw)
	if err != nil {
		return string(raw)
	}

	switch {
	case parsed.TextBody != "":
		return parsed.TextBody
	case parsed.HTMLBody != "":
		return StripHTML(parsed.HTMLBody)
	default:
		return string(raw)
	}
}

// ParseMessage parses a raw message using go-message and extracts the
// first text/plain and text/html inline bodies. Unknown charsets are
// tolerated; the undecoded bytes are used instead.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedMessage{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			if parsed.TextBody == "" && parsed.HTMLBody == "" {
				return nil, fmt.Errorf("reading message part: %w", err)
			}
			break
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && parsed.TextBody == "":
			parsed.TextBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && parsed.HTMLBody == "":
			parsed.HTMLBody = string(body)
		}
	}

	return parsed, nil
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	entityReplacer    = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
	)
)

// StripHTML removes tags, decodes &nbsp; &amp; &lt; and &gt;, collapses
// whitespace runs to a single space and trims the result.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	text := htmlTagPattern.ReplaceAllString(html, "")
	text = entityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
