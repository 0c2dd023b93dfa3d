package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/inboxdigest/internal/inbox"
)

// Item status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Item is the outcome for one email of a batch.
type Item struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	FromCache bool   `json:"fromCache,omitempty"`
	Summary   string `json:"summaryHtml,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report tallies a batch and keeps its items in request order.
type Report struct {
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	FromCache  int    `json:"fromCache"`
	Results    []Item `json:"results"`
}

// EmailIDs reads an email id argument. MCP clients send it as a JSON array,
// a string holding a JSON array, a comma separated string or a single id.
func EmailIDs(v any, name string) ([]string, error) {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		s := strings.TrimSpace(t)
		switch {
		case strings.HasPrefix(s, "["):
			if err := json.Unmarshal([]byte(s), &raw); err != nil {
				return nil, fmt.Errorf("%s is not a valid JSON array of strings: %w", name, err)
			}
		case s != "":
			raw = strings.Split(s, ",")
		}
	case []string:
		raw = t
	case []any:
		raw = make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			raw[i] = s
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}
	ids := make([]string, len(raw))
	for i, id := range raw {
		ids[i] = strings.TrimSpace(id)
		if ids[i] == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
		}
	}
	return ids, nil
}

// NewReport builds the report of a summarize batch.
func NewReport(results []inbox.Result) Report {
	r := Report{Total: len(results), Results: make([]Item, 0, len(results))}
	for _, res := range results {
		item := Item{ID: res.EmailID, Status: StatusSuccess, FromCache: res.FromCache}
		switch {
		case res.Err != nil:
			item = Item{ID: res.EmailID, Status: StatusError, Error: res.Err.Error()}
			r.Failed++
		case res.FromCache:
			r.FromCache++
			r.Successful++
		default:
			r.Successful++
		}
		if res.Err == nil && res.Summary != nil {
			item.Summary = res.Summary.SummaryHTMLFull
		}
		r.Results = append(r.Results, item)
	}
	return r
}

// String renders the report as indented JSON.
func (r Report) String() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}
