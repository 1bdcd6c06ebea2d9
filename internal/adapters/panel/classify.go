package panel

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	perr "otprelay/internal/platform/errors"
	pstrings "otprelay/internal/platform/strings"

	"github.com/PuerkitoBio/goquery"
)

// Outcome classifies one panel response
type Outcome string

const (
	// OutcomeOK carried at least one row
	OutcomeOK Outcome = "ok"
	// OutcomeEmpty was valid JSON with an empty aaData
	OutcomeEmpty Outcome = "empty"
	// OutcomeHTML was an HTML page, usually the login form
	OutcomeHTML Outcome = "html"
	// OutcomeMalformed did not parse as JSON
	OutcomeMalformed Outcome = "malformed"
	// OutcomeMissingData parsed but had no aaData field
	OutcomeMissingData Outcome = "missing_data"
	// OutcomeEmptyBody was blank or too short to be a response
	OutcomeEmptyBody Outcome = "empty_body"
	// OutcomeTransport never produced a usable body (network error or bad status)
	OutcomeTransport Outcome = "transport"
)

// minBody is the shortest body treated as a real response
const minBody = 10

// classify maps a 2xx body to an outcome; rows and total are set for OK
func classify(contentType string, body []byte) (Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < minBody {
		return Result{Outcome: OutcomeEmptyBody}, perr.Formatf("panel returned an empty body (%d bytes)", len(trimmed))
	}
	if looksHTML(contentType, trimmed) {
		return Result{Outcome: OutcomeHTML}, htmlError(trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Result{Outcome: OutcomeMalformed}, perr.Wrap(err, perr.ErrorCodeJSON, "panel returned invalid JSON")
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Result{Outcome: OutcomeMissingData}, perr.Formatf("panel JSON is not an object")
	}
	data, present := obj["aaData"]
	if !present {
		return Result{Outcome: OutcomeMissingData}, perr.Formatf("panel JSON has no aaData field")
	}
	total := totalRecords(obj)
	if data == nil {
		return Result{Outcome: OutcomeEmpty, Total: total}, nil
	}
	rows, ok := data.([]any)
	if !ok {
		return Result{Outcome: OutcomeMissingData}, perr.Formatf("panel aaData is not a list")
	}
	if len(rows) == 0 {
		return Result{Outcome: OutcomeEmpty, Total: total}, nil
	}
	return Result{Outcome: OutcomeOK, Rows: rows, Total: total}, nil
}

func looksHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") && !json.Valid(body) {
		return true
	}
	if body[0] == '<' {
		return true
	}
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

// htmlError tells a login page apart from any other HTML
func htmlError(body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return perr.Formatf("panel returned HTML instead of JSON")
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	login := doc.Find(`input[type="password"]`).Length() > 0
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		if strings.Contains(strings.ToLower(action), "login") {
			login = true
		}
		return !login
	})
	if !login && strings.Contains(strings.ToLower(title), "login") {
		login = true
	}
	if login {
		return perr.WithField(perr.SessionExpiredf("panel session expired (login page %q)", pstrings.Excerpt(title, 60)), "PANEL_PHPSESSID")
	}
	return perr.Formatf("panel returned HTML instead of JSON (title %q)", pstrings.Excerpt(title, 60))
}

func totalRecords(obj map[string]any) int {
	for _, k := range []string{"iTotalRecords", "iTotalDisplayRecords", "recordsTotal"} {
		switch v := obj[k].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return -1
}

// statusError maps a non-2xx status to a coded error
func statusError(status int, body []byte) error {
	tail := pstrings.Excerpt(string(body), 120)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return perr.WithField(perr.SessionExpiredf("panel rejected the session (status %d)", status), "PANEL_PHPSESSID")
	case status == http.StatusTooManyRequests:
		return perr.TooManyRequestsf("panel rate limited (status %d)", status)
	case status >= 500:
		return perr.Unavailablef("panel server error (status %d) %s", status, tail)
	default:
		return perr.Newf(perr.ErrorCodeUnknown, "panel unexpected status %d %s", status, tail)
	}
}
