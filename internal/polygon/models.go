package polygon

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ternarybob/speculor/internal/models"
)

// envelope is the superset of top-level fields the provider may return.
// Error signalling varies by endpoint: status=ERROR plus one of error /
// message, or a Note carrying rate-limit phrasing.
type envelope struct {
	Status     string          `json:"status"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Note       string          `json:"Note"`
	Results    json.RawMessage `json:"results"`
	Historical json.RawMessage `json:"historical"`
}

// rateLimitPhrases are body fragments that mean "throttled" even when the
// HTTP status is 200.
var rateLimitPhrases = []string{
	"exceeded the maximum requests",
	"too many requests",
	"rate limit",
}

// payloadError inspects a decoded envelope for provider-encoded errors.
// Returns nil when the payload looks like data.
func payloadError(env *envelope, endpoint string) error {
	for _, msg := range []string{env.Note, env.Error, env.Message} {
		if msg == "" {
			continue
		}
		lower := strings.ToLower(msg)
		for _, phrase := range rateLimitPhrases {
			if strings.Contains(lower, phrase) {
				return newError(KindRateLimited, endpoint, "%s", msg)
			}
		}
	}
	if strings.EqualFold(env.Status, "ERROR") {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return newError(KindBadPayload, endpoint, "provider error status: %s", msg)
	}
	return nil
}

// parseBars decodes a bar-array payload tolerantly. Accepts the
// {results: [...]} envelope, the {historical: [...]} envelope, and a bare
// top-level array; individual bars may use short (t/o/h/l/c/v) or long
// (timestamp/open/.../volume) keys. A payload that parses but holds no
// bars yields an empty, non-error result.
func parseBars(body []byte, endpoint string) ([]models.Bar, error) {
	var raw json.RawMessage

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		raw = body
	} else {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, newError(KindBadPayload, endpoint, "undecodable body: %v", err)
		}
		if err := payloadError(&env, endpoint); err != nil {
			return nil, err
		}
		switch {
		case len(env.Results) > 0 && string(env.Results) != "null":
			raw = env.Results
		case len(env.Historical) > 0 && string(env.Historical) != "null":
			raw = env.Historical
		default:
			return nil, nil
		}
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, newError(KindBadPayload, endpoint, "unexpected array shape: %v", err)
	}

	bars := make([]models.Bar, 0, len(entries))
	for _, entry := range entries {
		if bar, ok := normalizeBar(entry); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// normalizeBar maps one raw entry to the canonical bar form, trying short
// keys first and long keys second. Entries without a timestamp and close
// are dropped.
func normalizeBar(entry map[string]json.RawMessage) (models.Bar, bool) {
	ts, tsOK := barTimestamp(entry)
	closePx, closeOK := barField(entry, "c", "close")
	if !tsOK || !closeOK {
		return models.Bar{}, false
	}

	open, _ := barField(entry, "o", "open")
	high, _ := barField(entry, "h", "high")
	low, _ := barField(entry, "l", "low")
	volume, _ := barField(entry, "v", "volume")

	return models.Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
	}, true
}

func barField(entry map[string]json.RawMessage, short, long string) (float64, bool) {
	for _, key := range []string{short, long} {
		raw, ok := entry[key]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
	}
	return 0, false
}

func barTimestamp(entry map[string]json.RawMessage) (time.Time, bool) {
	// Short form: epoch milliseconds under "t".
	if raw, ok := entry["t"]; ok {
		var ms int64
		if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
			return time.UnixMilli(ms), true
		}
	}
	// Long forms: epoch millis under "timestamp", or an ISO date string.
	if raw, ok := entry["timestamp"]; ok {
		var ms int64
		if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
			return time.UnixMilli(ms), true
		}
	}
	if raw, ok := entry["date"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if t, err := time.Parse("2006-01-02", s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// indicatorResponse is the shape of /v1/indicators responses.
type indicatorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Note    string `json:"Note"`
	Results struct {
		Values []struct {
			Timestamp int64   `json:"timestamp"`
			Value     float64 `json:"value"`
		} `json:"values"`
	} `json:"results"`
}

// referenceResponse is the shape of /v3/reference/tickers responses.
type referenceResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Note    string `json:"Note"`
	Results []struct {
		Ticker          string `json:"ticker"`
		Active          bool   `json:"active"`
		PrimaryExchange string `json:"primary_exchange"`
		Type            string `json:"type"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}
