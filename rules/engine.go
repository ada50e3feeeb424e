package rules

import "strings"

// ShouldShowQuestion reports whether a question guarded by rules must be
// displayed and validated for the given answers.
//
// A nil RuleSet or one without conditions always shows the question. AND
// requires every condition to hold, OR requires at least one. Any other logic
// value shows the question.
func ShouldShowQuestion(rules *RuleSet, answers AnswerSet) bool {
	if rules == nil || len(rules.Conditions) == 0 {
		return true
	}

	switch rules.Logic {
	case LogicAnd:
		for _, c := range rules.Conditions {
			if !EvaluateCondition(c, answers) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, c := range rules.Conditions {
			if EvaluateCondition(c, answers) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// EvaluateCondition reports whether a single condition holds.
//
// An unanswered question never satisfies a condition, whatever the operator:
// notEquals is false too. Conditions that reference a question with no answer
// (including keys that exist nowhere in the form) are therefore false. Unknown
// operators are false.
func EvaluateCondition(c Condition, answers AnswerSet) bool {
	current := answers.Get(c.QuestionKey)
	if current.IsMissing() {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return compareEquals(current, c.Value)
	case OpNotEquals:
		return !compareEquals(current, c.Value)
	case OpContains:
		return compareContains(current, c.Value)
	default:
		return false
	}
}

// compareEquals matches sequences by exact membership and scalars by
// case-insensitive text.
//
// Two sequences are equal when they have the same length and every element
// of current appears in expected. Duplicates are not counted, so ["a","a"]
// equals ["a","b"].
func compareEquals(current Answer, expected ConditionValue) bool {
	switch current.Kind() {
	case KindMultiText:
		items := current.Items()
		if expected.IsList() {
			want := expected.Items()
			if len(items) != len(want) {
				return false
			}
			for _, item := range items {
				if !containsExact(want, item) {
					return false
				}
			}
			return true
		}
		return containsExact(items, expected.String())
	case KindAttachments:
		// attachment descriptors never equal a text value
		if expected.IsList() {
			return current.Len() == 0 && len(expected.Items()) == 0
		}
		return false
	default:
		return strings.ToLower(current.Text()) == strings.ToLower(expected.String())
	}
}

// compareContains is a case-insensitive substring match. For sequences any
// element may contain the expected text.
func compareContains(current Answer, expected ConditionValue) bool {
	needle := strings.ToLower(expected.String())

	switch current.Kind() {
	case KindMultiText:
		for _, item := range current.Items() {
			if strings.Contains(strings.ToLower(item), needle) {
				return true
			}
		}
		return false
	case KindAttachments:
		return false
	default:
		return strings.Contains(strings.ToLower(current.Text()), needle)
	}
}

func containsExact(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
