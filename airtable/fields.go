package airtable

import "github.com/liamcoop/formsync/rules"

// IsSupportedFieldType reports whether a field of this Airtable type can back a question
func IsSupportedFieldType(fieldType string) bool {
	return rules.QuestionType(fieldType).IsSupported()
}

// MapFieldType returns the question type for an Airtable field type
func MapFieldType(fieldType string) (rules.QuestionType, bool) {
	t := rules.QuestionType(fieldType)
	if !t.IsSupported() {
		return "", false
	}
	return t, true
}
