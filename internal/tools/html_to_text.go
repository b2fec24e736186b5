package tools

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLToText reduces an HTML page (a provider error page or a fetched
// document) to one line per block element. Script and style bodies are
// dropped.
func HTMLToText(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(doc)
			}
			return joinLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHidden(a) {
				hidden++
			} else if breaksLine(a) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHidden(atom.Lookup(name)) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style || a == atom.Noscript
}

func breaksLine(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2, atom.H3, atom.Title, atom.Pre:
		return true
	}
	return false
}

// joinLines collapses runs of whitespace inside each line and drops blank lines.
func joinLines(s string) string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

// looksLikeHTML sniffs the content type, then the first 512 bytes of body.
func looksLikeHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	if len(body) > 512 {
		body = body[:512]
	}
	head := strings.ToLower(body)
	for _, marker := range []string{"<!doctype html", "<html", "<body"} {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}
