package insight

import (
	"encoding/json"
	"strings"
)

// FallbackText replaces the insight whenever the analysis cannot be obtained.
const FallbackText = "I couldn't analyze your website properly. Let's continue anyway - can you tell me more about your business?"

// Kind tags which branch of the analysis outcome a Result holds.
type Kind int

const (
	KindFailed Kind = iota
	KindStructured
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRaw:
		return "raw"
	default:
		return "failed"
	}
}

// Payload is the structured marketing analysis of a website.
type Payload struct {
	Description     string   `json:"description"`
	Products        []string `json:"products"`
	Objectives      []string `json:"objectives"`
	Audiences       []string `json:"audiences"`
	ChannelPriority []string `json:"channel_priority"`
}

// Result is the outcome of an analysis call: Structured(Payload), Raw(text) or Failed(err).
type Result struct {
	Kind    Kind
	Payload Payload
	Raw     string
	Err     error
}

// Structured wraps a parsed payload.
func Structured(p Payload) Result { return Result{Kind: KindStructured, Payload: p} }

// Raw wraps analysis text that is not a JSON payload.
func Raw(text string) Result { return Result{Kind: KindRaw, Raw: text} }

// Failed records why no analysis is available.
func Failed(err error) Result { return Result{Kind: KindFailed, Err: err} }

// Text renders the result as the assistant message shown to the user.
func (r Result) Text() string {
	switch r.Kind {
	case KindStructured:
		return Format(r.Payload)
	case KindRaw:
		return r.Raw
	default:
		return FallbackText
	}
}

// Classify turns the data field of a success envelope into a Result. Text that
// is not a JSON object is kept verbatim; an empty or null payload counts as a failure.
func Classify(data string) Result {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" || trimmed == "null" {
		return Failed(ErrEmptyPayload)
	}

	var p Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return Raw(data)
	}
	return Structured(p)
}
