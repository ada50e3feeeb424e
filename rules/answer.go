package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind identifies which variant an Answer holds
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindMultiText
	KindAttachments
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMultiText:
		return "multiText"
	case KindAttachments:
		return "attachments"
	default:
		return "empty"
	}
}

// Answer is a submitted value for one question. Raw request input is parsed
// into an Answer once, at the boundary, and the engine only ever sees the variant.
type Answer struct {
	kind        Kind
	text        string
	items       []string
	attachments []AttachmentRef
}

// EmptyAnswer is an unanswered question
func EmptyAnswer() Answer {
	return Answer{}
}

// TextAnswer holds a scalar answer. The empty string counts as unanswered.
func TextAnswer(s string) Answer {
	if s == "" {
		return Answer{}
	}
	return Answer{kind: KindText, text: s}
}

// MultiTextAnswer holds a multi-select answer. An empty list is still an
// answer, it is only treated as missing by the required check.
func MultiTextAnswer(items ...string) Answer {
	if items == nil {
		items = []string{}
	}
	return Answer{kind: KindMultiText, items: items}
}

// AttachmentsAnswer holds uploaded file descriptors
func AttachmentsAnswer(refs ...AttachmentRef) Answer {
	if refs == nil {
		refs = []AttachmentRef{}
	}
	return Answer{kind: KindAttachments, attachments: refs}
}

func (a Answer) Kind() Kind { return a.kind }

// IsMissing reports whether the answer is absent, null or the empty string
func (a Answer) IsMissing() bool { return a.kind == KindEmpty }

// IsSequence reports whether the answer is a list of values
func (a Answer) IsSequence() bool {
	return a.kind == KindMultiText || a.kind == KindAttachments
}

// Len returns the number of elements of a sequence answer, 0 otherwise
func (a Answer) Len() int {
	switch a.kind {
	case KindMultiText:
		return len(a.items)
	case KindAttachments:
		return len(a.attachments)
	}
	return 0
}

func (a Answer) Text() string { return a.text }

func (a Answer) Items() []string { return a.items }

func (a Answer) Attachments() []AttachmentRef { return a.attachments }

// Value returns the plain Go value for JSON encoding and record storage
func (a Answer) Value() any {
	switch a.kind {
	case KindText:
		return a.text
	case KindMultiText:
		return a.items
	case KindAttachments:
		return a.attachments
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid answer: %w", err)
	}
	*a = ParseAnswer(raw)
	return nil
}

// ParseAnswer converts a decoded JSON value into an Answer. It never fails:
// values that fit no variant are kept by their text form.
func ParseAnswer(raw any) Answer {
	switch v := raw.(type) {
	case nil:
		return EmptyAnswer()
	case string:
		return TextAnswer(v)
	case []string:
		return MultiTextAnswer(append([]string(nil), v...)...)
	case []AttachmentRef:
		return AttachmentsAnswer(append([]AttachmentRef(nil), v...)...)
	case []any:
		if refs, ok := decodeAttachments(v); ok {
			return AttachmentsAnswer(refs...)
		}
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, stringify(item))
		}
		return MultiTextAnswer(items...)
	default:
		return TextAnswer(stringify(v))
	}
}

// decodeAttachments succeeds only for a non-empty list made entirely of objects
func decodeAttachments(list []any) ([]AttachmentRef, bool) {
	if len(list) == 0 {
		return nil, false
	}
	for _, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return nil, false
		}
	}

	var refs []AttachmentRef
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &refs,
	})
	if err != nil {
		return nil, false
	}
	if err := decoder.Decode(list); err != nil {
		return nil, false
	}
	return refs, true
}

// AnswerSet maps question keys to answers
type AnswerSet map[string]Answer

// Get returns the answer for key, or an empty answer when there is none
func (s AnswerSet) Get(key string) Answer {
	if s == nil {
		return EmptyAnswer()
	}
	return s[key]
}

// ParseAnswers converts a decoded JSON object into an AnswerSet
func ParseAnswers(raw map[string]any) AnswerSet {
	set := make(AnswerSet, len(raw))
	for key, value := range raw {
		set[key] = ParseAnswer(value)
	}
	return set
}

// stringify renders a decoded JSON value the way it is compared as text
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(encoded)
	}
}

// formatNumber renders a number the way JavaScript's String(n) does: plain
// decimals in [1e-6, 1e21), shortest exponent form outside it ("1e+21").
func formatNumber(f float64) string {
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits
}
