package batch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/inbox"
)

func TestEmailIDs(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    []string
		wantErr string
	}{
		{name: "single id", in: "g_1", want: []string{"g_1"}},
		{name: "comma separated", in: "g_1, o_2", want: []string{"g_1", "o_2"}},
		{name: "json array string", in: `["g_1", "o_2"]`, want: []string{"g_1", "o_2"}},
		{name: "array", in: []any{"g_1", "o_2"}, want: []string{"g_1", "o_2"}},
		{name: "string slice", in: []string{"o_2"}, want: []string{"o_2"}},
		{name: "missing", in: nil, wantErr: "emailIds is required"},
		{name: "empty string", in: "  ", wantErr: "emailIds cannot be empty"},
		{name: "empty array", in: []any{}, wantErr: "emailIds cannot be empty"},
		{name: "empty json array", in: "[]", wantErr: "emailIds cannot be empty"},
		{name: "broken json array", in: `["g_1"`, wantErr: "not a valid JSON array"},
		{name: "blank element", in: []any{"g_1", ""}, wantErr: "emailIds[1] cannot be empty"},
		{name: "trailing comma", in: "g_1,", wantErr: "emailIds[1] cannot be empty"},
		{name: "non-string element", in: []any{"g_1", 7}, wantErr: "emailIds[1] must be a string"},
		{name: "wrong type", in: 42, wantErr: "must be a string or array of strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EmailIDs(tt.in, "emailIds")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewReport(t *testing.T) {
	fresh := &cache.CachedSummary{SummaryHTMLFull: "<p>fresh</p>"}
	cached := &cache.CachedSummary{SummaryHTMLFull: "<p>cached</p>"}

	r := NewReport([]inbox.Result{
		{EmailID: "g_1", Summary: fresh},
		{EmailID: "o_2", Summary: cached, FromCache: true},
		{EmailID: "g_bad", Err: errors.New("Summarizer unavailable")},
	})

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Successful)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.FromCache)
	assert.Equal(t, []Item{
		{ID: "g_1", Status: StatusSuccess, Summary: "<p>fresh</p>"},
		{ID: "o_2", Status: StatusSuccess, FromCache: true, Summary: "<p>cached</p>"},
		{ID: "g_bad", Status: StatusError, Error: "Summarizer unavailable"},
	}, r.Results)
}

func TestReportString(t *testing.T) {
	r := NewReport([]inbox.Result{
		{EmailID: "g_1", Summary: &cache.CachedSummary{SummaryHTMLFull: "<p>s</p>"}},
		{EmailID: "g_bad", Err: errors.New("boom")},
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.String()), &decoded))
	assert.Equal(t, float64(2), decoded["total"])
	assert.Equal(t, float64(1), decoded["failed"])

	results := decoded["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "<p>s</p>", first["summaryHtml"])
	assert.NotContains(t, first, "error")
	assert.NotContains(t, first, "fromCache")
}

func TestNewReportEmpty(t *testing.T) {
	r := NewReport(nil)
	assert.Zero(t, r.Total)
	assert.Contains(t, r.String(), `"results": []`)
}
