// Package artifact converts free-text input into stored artifacts and looks
// them up again. Conversion is deterministic scaffolding: a truncated
// summary and a fixed execution plan.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fansoftheone/engine/internal/storage"
)

// Brand is stamped on every artifact and archive.
const Brand = "Fans of the One"

const (
	MaxRawInputChars = 20000
	MaxModeChars     = 64
	SummaryChars     = 200
)

// TimestampLayout renders UTC times as ISO-8601 with a trailing "Z".
const TimestampLayout = "2006-01-02T15:04:05.999999Z07:00"

// ErrNotFound is returned when no artifact exists for an id.
var ErrNotFound = errors.New("artifact not found")

// ValidationError reports a request field that violates its constraints.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StructuredOutput is the fixed-shape record derived from raw input.
type StructuredOutput struct {
	Brand         string   `json:"brand"`
	Mode          string   `json:"mode"`
	Summary       string   `json:"summary"`
	Constraints   []string `json:"constraints"`
	Assumptions   []string `json:"assumptions"`
	ExecutionPlan []string `json:"execution_plan"`
}

// Artifact is an immutable record created by one convert request.
type Artifact struct {
	ID               string
	Brand            string
	Mode             string
	RawInput         string
	StructuredOutput StructuredOutput
	CreatedAt        time.Time
}

type artifactJSON struct {
	ID               string           `json:"id"`
	Brand            string           `json:"brand"`
	Mode             string           `json:"mode"`
	RawInput         string           `json:"raw_input"`
	StructuredOutput StructuredOutput `json:"structured_output"`
	CreatedAt        string           `json:"created_at"`
}

// MarshalJSON emits the wire form with created_at as an ISO-8601 UTC string.
func (a Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(artifactJSON{
		ID:               a.ID,
		Brand:            a.Brand,
		Mode:             a.Mode,
		RawInput:         a.RawInput,
		StructuredOutput: a.StructuredOutput,
		CreatedAt:        FormatTimestamp(a.CreatedAt),
	})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var aux artifactJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	createdAt, err := time.Parse(TimestampLayout, aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	*a = Artifact{
		ID:               aux.ID,
		Brand:            aux.Brand,
		Mode:             aux.Mode,
		RawInput:         aux.RawInput,
		StructuredOutput: aux.StructuredOutput,
		CreatedAt:        createdAt,
	}
	return nil
}

// FormatTimestamp renders t in UTC with a trailing "Z".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ExecutionPlan returns the fixed plan attached to every artifact.
func ExecutionPlan() []string {
	return []string{
		"Clarify intent into one sentence",
		"List hard constraints (time, money, tools)",
		"Break into 3-7 executable steps",
		"Export plan as zip (md + json)",
	}
}

// Structure derives the structured output for rawInput and mode.
func Structure(rawInput, mode string) StructuredOutput {
	return StructuredOutput{
		Brand:         Brand,
		Mode:          mode,
		Summary:       TruncateRunes(rawInput, SummaryChars),
		Constraints:   []string{},
		Assumptions:   []string{},
		ExecutionPlan: ExecutionPlan(),
	}
}

// TruncateRunes returns at most n characters of s, never splitting a rune.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Validate checks the convert request constraints.
func Validate(rawInput, mode string) error {
	if err := checkLength("raw_input", rawInput, MaxRawInputChars); err != nil {
		return err
	}
	return checkLength("mode", mode, MaxModeChars)
}

func checkLength(field, value string, max int) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if n > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func toRecord(a Artifact) (storage.Artifact, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.StructuredOutput); err != nil {
		return storage.Artifact{}, fmt.Errorf("encoding structured output: %w", err)
	}
	return storage.Artifact{
		ID:             a.ID,
		Brand:          a.Brand,
		Mode:           a.Mode,
		RawInput:       a.RawInput,
		StructuredJSON: string(bytes.TrimRight(buf.Bytes(), "\n")),
		CreatedAt:      a.CreatedAt,
	}, nil
}

func fromRecord(r storage.Artifact) (Artifact, error) {
	var so StructuredOutput
	if err := json.Unmarshal([]byte(r.StructuredJSON), &so); err != nil {
		return Artifact{}, fmt.Errorf("decoding structured output of %s: %w", r.ID, err)
	}
	return Artifact{
		ID:               r.ID,
		Brand:            r.Brand,
		Mode:             r.Mode,
		RawInput:         r.RawInput,
		StructuredOutput: so,
		CreatedAt:        r.CreatedAt,
	}, nil
}
