package forms

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/liamcoop/formsync/rules"
	"github.com/xeipuuv/gojsonschema"
)

const (
	maxQuestions    = 200
	maxKeyLength    = 100
	maxTitleLength  = 200
	maxOptionsCount = 500
)

// ErrInvalidDefinition is wrapped by every form definition validation error
var ErrInvalidDefinition = errors.New("invalid form definition")

// UnsupportedTypesError lists question types outside the five supported ones
type UnsupportedTypesError struct {
	Types []string
}

func (e *UnsupportedTypesError) Error() string {
	return fmt.Sprintf("unsupported question types found: %s", strings.Join(e.Types, ", "))
}

func (e *UnsupportedTypesError) Unwrap() error {
	return ErrInvalidDefinition
}

//go:embed form.schema.json
var formSchemaJSON []byte

var formSchema = mustLoadSchema(formSchemaJSON)

func mustLoadSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("forms: invalid embedded schema: %v", err))
	}
	return schema
}

// ValidatePayload checks the shape of a raw JSON form definition before it is
// decoded. Type errors such as a string where a list is expected are reported
// here, with the JSON path of each problem.
func ValidatePayload(raw []byte) error {
	result, err := formSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(issues, "; "))
}

// ValidateDefinition validates a decoded form definition.
// Returns an error if validation fails, nil if the form is valid.
func ValidateDefinition(form *Form) error {
	if strings.TrimSpace(form.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDefinition)
	}
	if len(form.Title) > maxTitleLength {
		return fmt.Errorf("%w: title length %d exceeds maximum of %d characters", ErrInvalidDefinition, len(form.Title), maxTitleLength)
	}
	if form.AirtableBaseID == "" || form.AirtableTableID == "" {
		return fmt.Errorf("%w: airtableBaseId and airtableTableId are required", ErrInvalidDefinition)
	}

	return ValidateQuestions(form.Questions)
}

// ValidateQuestions validates the question list of a form
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: form must contain at least one question", ErrInvalidDefinition)
	}
	if len(questions) > maxQuestions {
		return fmt.Errorf("%w: form contains %d questions, maximum allowed is %d", ErrInvalidDefinition, len(questions), maxQuestions)
	}

	var unsupported []string
	for _, q := range questions {
		if !q.Type.IsSupported() {
			unsupported = append(unsupported, string(q.Type))
		}
	}
	if len(unsupported) > 0 {
		return &UnsupportedTypesError{Types: unsupported}
	}

	keys := make(map[string]bool, len(questions))
	fieldIDs := make(map[string]bool, len(questions))
	for _, q := range questions {
		if err := validateQuestionKey(q.Key); err != nil {
			return fmt.Errorf("%w: invalid question key %q: %v", ErrInvalidDefinition, q.Key, err)
		}
		if keys[q.Key] {
			return fmt.Errorf("%w: duplicate question key %q", ErrInvalidDefinition, q.Key)
		}
		keys[q.Key] = true

		if q.AirtableFieldID == "" {
			return fmt.Errorf("%w: question %q has no airtableFieldId", ErrInvalidDefinition, q.Key)
		}
		if fieldIDs[q.AirtableFieldID] {
			return fmt.Errorf("%w: field %q is used by more than one question", ErrInvalidDefinition, q.AirtableFieldID)
		}
		fieldIDs[q.AirtableFieldID] = true

		if strings.TrimSpace(q.Label) == "" {
			return fmt.Errorf("%w: question %q has no label", ErrInvalidDefinition, q.Key)
		}

		if q.Type == rules.SingleSelect || q.Type == rules.MultipleSelects {
			if len(q.Options) == 0 {
				return fmt.Errorf("%w: question %q of type %s must have options", ErrInvalidDefinition, q.Key, q.Type)
			}
			if len(q.Options) > maxOptionsCount {
				return fmt.Errorf("%w: question %q has %d options, maximum allowed is %d", ErrInvalidDefinition, q.Key, len(q.Options), maxOptionsCount)
			}
		}
	}

	for _, q := range questions {
		if err := validateRuleSet(q.Key, q.ConditionalRules, keys); err != nil {
			return err
		}
	}

	return nil
}

// validateRuleSet enforces the stored enums and that every condition points at
// another question of the same form. The engine tolerates all of these at
// evaluation time; they are rejected here so they never get saved.
func validateRuleSet(owner string, rs *rules.RuleSet, keys map[string]bool) error {
	if rs == nil || len(rs.Conditions) == 0 {
		return nil
	}

	if rs.Logic != rules.LogicAnd && rs.Logic != rules.LogicOr {
		return fmt.Errorf("%w: question %q has invalid logic %q (must be AND or OR)", ErrInvalidDefinition, owner, rs.Logic)
	}

	for i, c := range rs.Conditions {
		switch c.Operator {
		case rules.OpEquals, rules.OpNotEquals, rules.OpContains:
		default:
			return fmt.Errorf("%w: question %q condition %d has invalid operator %q", ErrInvalidDefinition, owner, i, c.Operator)
		}

		if c.QuestionKey == owner {
			return fmt.Errorf("%w: question %q has a condition on itself", ErrInvalidDefinition, owner)
		}
		if !keys[c.QuestionKey] {
			return fmt.Errorf("%w: question %q condition %d references unknown question %q", ErrInvalidDefinition, owner, i, c.QuestionKey)
		}
	}

	return nil
}

// validateQuestionKey accepts any non-blank key without whitespace, up to 100 characters
func validateQuestionKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("key length %d exceeds maximum of %d characters", len(key), maxKeyLength)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("key cannot contain whitespace or control characters")
		}
	}
	return nil
}

// QuestionKey derives a question key from an Airtable field name: lowercase,
// with runs of whitespace replaced by underscores.
func QuestionKey(fieldName string) string {
	return strings.ToLower(strings.Join(strings.Fields(fieldName), "_"))
}
