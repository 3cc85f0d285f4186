package feed

import (
	"time"

	"github.com/tidwall/gjson"
)

// Outcome classifies a raw feed document.
type Outcome int

const (
	// OutcomeEmpty means there were no bytes to parse.
	OutcomeEmpty Outcome = iota
	// OutcomeMalformed means the bytes are not valid JSON.
	OutcomeMalformed
	// OutcomeMissingQuotes means valid JSON without a "quotes" field, e.g. an API error body.
	OutcomeMissingQuotes
	// OutcomeValid means valid JSON carrying a "quotes" field.
	OutcomeValid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeMissingQuotes:
		return "missing_quotes"
	case OutcomeValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Epoch is the feed timestamp used when a document carries none.
var Epoch = time.Unix(0, 0).UTC()

// Document is a parsed live quotes response.
type Document struct {
	Quotes    map[string]float64
	Timestamp time.Time
	Outcome   Outcome
}

// Valid reports whether the document may be written to a cache store.
func (d Document) Valid() bool {
	return d.Outcome == OutcomeValid
}

// Empty reports whether the document yields no quotes.
func (d Document) Empty() bool {
	return len(d.Quotes) == 0
}

// Parse turns raw bytes into a Document. It never fails: unusable input comes back
// as an empty document tagged with the reason.
func Parse(raw []byte) Document {
	document := Document{Quotes: map[string]float64{}, Timestamp: Epoch}

	if len(raw) == 0 {
		document.Outcome = OutcomeEmpty
		return document
	}
	if !gjson.ValidBytes(raw) {
		document.Outcome = OutcomeMalformed
		return document
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		document.Outcome = OutcomeMissingQuotes
		return document
	}

	if timestamp := parsed.Get("timestamp"); timestamp.Type == gjson.Number {
		document.Timestamp = time.Unix(timestamp.Int(), 0).UTC()
	}

	quotes := parsed.Get("quotes")
	if !quotes.Exists() {
		document.Outcome = OutcomeMissingQuotes
		return document
	}
	document.Outcome = OutcomeValid

	if !quotes.IsObject() {
		return document
	}
	quotes.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			document.Quotes[key.String()] = value.Float()
		}
		return true
	})
	return document
}
