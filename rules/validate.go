package rules

import (
	"fmt"
	"strings"
)

// ValidateFormSubmission checks answers against the questions of a form, in
// order. Hidden questions are skipped entirely. Each visible question
// contributes at most one error: a missing required answer, or a structural
// error for select and attachment types. Unknown question types only get the
// required check.
func ValidateFormSubmission(questions []Question, answers AnswerSet) ValidationResult {
	result := ValidationResult{
		IsValid: true,
		Errors:  make(map[string]string),
	}

	for _, q := range questions {
		if !ShouldShowQuestion(q.ConditionalRules, answers) {
			continue
		}

		answer := answers.Get(q.Key)

		if q.Required && (answer.IsMissing() || (answer.IsSequence() && answer.Len() == 0)) {
			result.addError(q.Key, fmt.Sprintf("%s is required", q.Label))
			continue
		}

		if answer.IsMissing() {
			continue
		}

		if msg := checkStructure(q, answer); msg != "" {
			result.addError(q.Key, msg)
		}
	}

	return result
}

// checkStructure returns the per-type error message for a present answer, or ""
func checkStructure(q Question, answer Answer) string {
	switch q.Type {
	case SingleSelect:
		if q.Options != nil && (answer.Kind() != KindText || !containsExact(q.Options, answer.Text())) {
			return fmt.Sprintf("Invalid option for %s", q.Label)
		}
	case MultipleSelects:
		if !answer.IsSequence() {
			return fmt.Sprintf("%s must be an array", q.Label)
		}
		if q.Options == nil {
			return ""
		}
		var invalid []string
		for _, item := range sequenceText(answer) {
			if !containsExact(q.Options, item) {
				invalid = append(invalid, item)
			}
		}
		if len(invalid) > 0 {
			return fmt.Sprintf("Invalid options for %s: %s", q.Label, strings.Join(invalid, ", "))
		}
	case MultipleAttachments:
		if !answer.IsSequence() {
			return fmt.Sprintf("%s must be an array", q.Label)
		}
	}
	return ""
}

// sequenceText returns the elements of a sequence answer as text. Attachment
// descriptors are rendered by URL so they can be reported.
func sequenceText(answer Answer) []string {
	if answer.Kind() == KindAttachments {
		out := make([]string, 0, answer.Len())
		for _, ref := range answer.Attachments() {
			out = append(out, ref.URL)
		}
		return out
	}
	return answer.Items()
}

// VisibleAnswers returns the answers of visible questions that are not
// missing, keyed by question key. This is what gets forwarded to the record
// store after a submission passes validation.
func VisibleAnswers(questions []Question, answers AnswerSet) AnswerSet {
	out := make(AnswerSet)
	for _, q := range questions {
		answer := answers.Get(q.Key)
		if answer.IsMissing() {
			continue
		}
		if !ShouldShowQuestion(q.ConditionalRules, answers) {
			continue
		}
		out[q.Key] = answer
	}
	return out
}

// Visibility evaluates ShouldShowQuestion for every question, keyed by question key
func Visibility(questions []Question, answers AnswerSet) map[string]bool {
	out := make(map[string]bool, len(questions))
	for _, q := range questions {
		out[q.Key] = ShouldShowQuestion(q.ConditionalRules, answers)
	}
	return out
}
