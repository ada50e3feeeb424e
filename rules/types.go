package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType is one of the Airtable field types a form can be generated from
type QuestionType string

const (
	SingleLineText      QuestionType = "singleLineText"
	MultilineText       QuestionType = "multilineText"
	SingleSelect        QuestionType = "singleSelect"
	MultipleSelects     QuestionType = "multipleSelects"
	MultipleAttachments QuestionType = "multipleAttachments"
)

// SupportedTypes lists every question type in the order they are documented
var SupportedTypes = []QuestionType{
	SingleLineText,
	MultilineText,
	SingleSelect,
	MultipleSelects,
	MultipleAttachments,
}

// IsSupported reports whether t is one of SupportedTypes
func (t QuestionType) IsSupported() bool {
	for _, s := range SupportedTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Logic combines the conditions of a RuleSet
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator compares an answer with a condition value
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notEquals"
	OpContains  Operator = "contains"
)

// Question is a single field in a generated form
type Question struct {
	Key              string       `json:"questionKey"`
	Label            string       `json:"label"`
	Type             QuestionType `json:"type"`
	Required         bool         `json:"required"`
	Options          []string     `json:"options,omitempty"`
	ConditionalRules *RuleSet     `json:"conditionalRules,omitempty"`
}

// RuleSet is a flat AND/OR group of conditions controlling a question's visibility.
// A nil RuleSet or one without conditions always shows the question.
type RuleSet struct {
	Logic      Logic       `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// Condition compares the answer to another question against Value
type Condition struct {
	QuestionKey string         `json:"questionKey"`
	Operator    Operator       `json:"operator"`
	Value       ConditionValue `json:"value"`
}

// ConditionValue is the expected side of a Condition: a single string or a list.
// Numbers and booleans in JSON are kept by their text form.
type ConditionValue struct {
	text   string
	list   []string
	isList bool
}

// Text returns a scalar condition value
func Text(s string) ConditionValue {
	return ConditionValue{text: s}
}

// List returns a list condition value
func List(items ...string) ConditionValue {
	if items == nil {
		items = []string{}
	}
	return ConditionValue{list: items, isList: true}
}

// IsList reports whether the value is a list
func (v ConditionValue) IsList() bool {
	return v.isList
}

// Items returns the list elements, or nil for a scalar
func (v ConditionValue) Items() []string {
	return v.list
}

// String returns the text form used for scalar comparisons. Lists join their
// elements with commas.
func (v ConditionValue) String() string {
	if v.isList {
		return strings.Join(v.list, ",")
	}
	return v.text
}

// MarshalJSON implements json.Marshaler
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.isList {
		return json.Marshal(v.list)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid condition value: %w", err)
	}

	switch t := raw.(type) {
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, stringify(item))
		}
		*v = List(items...)
	default:
		*v = Text(stringify(t))
	}
	return nil
}

// AttachmentRef describes one uploaded file in a multipleAttachments answer
type AttachmentRef struct {
	URL      string `json:"url" mapstructure:"url"`
	Filename string `json:"filename,omitempty" mapstructure:"filename"`
	ID       string `json:"id,omitempty" mapstructure:"id"`
	Type     string `json:"type,omitempty" mapstructure:"type"`
	Size     int64  `json:"size,omitempty" mapstructure:"size"`
}

// ValidationResult is the outcome of validating a form submission
type ValidationResult struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors"`

	order []string
}

// Keys returns the keys of Errors in form order
func (r ValidationResult) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *ValidationResult) addError(key, message string) {
	if _, exists := r.Errors[key]; !exists {
		r.order = append(r.order, key)
	}
	r.Errors[key] = message
	r.IsValid = false
}
