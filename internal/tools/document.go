package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pdfx "github.com/ledongthuc/pdf"
)

// DocumentAdapter turns a PDF, HTML or plain-text document into text, typically
// a script for a tts step. It finishes during Submit.
//
// Inputs:
//   - source: http(s) URL, data: URI or bare base64 (required)
//   - pages: page selection such as "1-3,7" (PDF only)
//   - max_pages: page cap, default 20
type DocumentAdapter struct {
	MaxBytes int
	client   *resty.Client
}

func NewDocumentAdapter(maxBytes int) *DocumentAdapter {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &DocumentAdapter{
		MaxBytes: maxBytes,
		client:   resty.New().SetTimeout(60 * time.Second).SetRetryCount(2),
	}
}

func (d *DocumentAdapter) Submit(ctx context.Context, model string, inputs map[string]any) (Handle, error) {
	source, _ := inputs["source"].(string)
	if strings.TrimSpace(source) == "" {
		return Handle{}, errors.New("missing source")
	}
	buf, ctype, err := d.load(ctx, source)
	if err != nil {
		return Handle{}, err
	}
	if len(buf) > d.MaxBytes {
		return Handle{}, fmt.Errorf("document too large: %d bytes > limit %d", len(buf), d.MaxBytes)
	}
	var text string
	switch {
	case bytes.HasPrefix(buf, []byte("%PDF-")) || strings.Contains(ctype, "pdf"):
		pages, _ := inputs["pages"].(string)
		text, err = pdfText(buf, pages, getInt(inputs, "max_pages", 20))
		if err != nil {
			return Handle{}, fmt.Errorf("read pdf: %w", err)
		}
	case looksLikeHTML(ctype, string(buf)):
		text = HTMLToText(string(buf))
	default:
		text = strings.TrimSpace(string(buf))
	}
	if text == "" {
		return Handle{}, errors.New("document contains no text")
	}
	return completed("", text), nil
}

func (d *DocumentAdapter) Status(ctx context.Context, h Handle) (JobStatus, error) {
	return inlineStatus(h)
}

func (d *DocumentAdapter) load(ctx context.Context, source string) ([]byte, string, error) {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		resp, err := d.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(source)
		if err != nil {
			return nil, "", fmt.Errorf("fetch document: %w", err)
		}
		body := resp.RawBody()
		defer body.Close()
		if !resp.IsSuccess() {
			return nil, "", fmt.Errorf("fetch document: status %d", resp.StatusCode())
		}
		// one byte past the limit is enough to reject
		buf, err := io.ReadAll(io.LimitReader(body, int64(d.MaxBytes)+1))
		if err != nil {
			return nil, "", fmt.Errorf("fetch document: %w", err)
		}
		if len(buf) > d.MaxBytes {
			return nil, "", fmt.Errorf("document too large: more than %d bytes", d.MaxBytes)
		}
		return buf, strings.ToLower(resp.Header().Get("Content-Type")), nil
	}
	ctype := ""
	if strings.HasPrefix(lower, "data:") {
		if i := strings.Index(source, ","); i != -1 {
			ctype = strings.ToLower(source[5:i])
			source = source[i+1:]
		}
	}
	buf, err := base64.StdEncoding.DecodeString(source)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64: %w", err)
	}
	return buf, ctype, nil
}

func pdfText(buf []byte, pagesSpec string, maxPages int) (string, error) {
	r, err := pdfx.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", err
	}
	total := r.NumPage()
	selected := expandPages(pagesSpec, total)
	if len(selected) == 0 {
		for i := 1; i <= total; i++ {
			selected = append(selected, i)
		}
	}
	if maxPages > 0 && len(selected) > maxPages {
		selected = selected[:maxPages]
	}
	var out strings.Builder
	for _, n := range selected {
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			out.WriteString(t)
			out.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func getInt(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n
			}
		}
	}
	return def
}

// expandPages parses "1-3,7" into page numbers within [1,total], deduplicated.
func expandPages(sel string, total int) []int {
	var out []int
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return out
	}
	seen := map[int]struct{}{}
	add := func(n int) {
		if n < 1 || n > total {
			return
		}
		if _, ok := seen[n]; !ok {
			out = append(out, n)
			seen[n] = struct{}{}
		}
	}
	for _, p := range strings.Split(sel, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "-") {
			rng := strings.SplitN(p, "-", 2)
			a, _ := strconv.Atoi(strings.TrimSpace(rng[0]))
			b, _ := strconv.Atoi(strings.TrimSpace(rng[1]))
			if a > b {
				a, b = b, a
			}
			a, b = max(a, 1), min(b, total)
			for i := a; i <= b; i++ {
				add(i)
			}
		} else {
			n, _ := strconv.Atoi(p)
			add(n)
		}
	}
	return out
}
