//go:build js && wasm

// Command formrules-wasm exposes the form rule engine to browsers so the
// frontend evaluates visibility and validation with the same code as the
// server. Build with GOOS=js GOARCH=wasm.
package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/liamcoop/formsync/rules"
)

func main() {
	js.Global().Set("formrules", js.ValueOf(map[string]any{
		"shouldShowQuestion":     js.FuncOf(shouldShowQuestion),
		"validateFormSubmission": js.FuncOf(validateFormSubmission),
	}))

	// Keep the exported functions alive
	select {}
}

// shouldShowQuestion(rulesJSON, answersJSON) -> bool
func shouldShowQuestion(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return jsError("shouldShowQuestion expects (rulesJSON, answersJSON)")
	}

	var rs *rules.RuleSet
	if raw := args[0].String(); raw != "" && raw != "null" {
		rs = &rules.RuleSet{}
		if err := json.Unmarshal([]byte(raw), rs); err != nil {
			// An unreadable rule set shows the question, like an absent one
			rs = nil
		}
	}

	answers, err := parseAnswers(args[1].String())
	if err != nil {
		return jsError(err.Error())
	}

	return rules.ShouldShowQuestion(rs, answers)
}

// validateFormSubmission(questionsJSON, answersJSON) -> resultJSON
func validateFormSubmission(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return jsError("validateFormSubmission expects (questionsJSON, answersJSON)")
	}

	var questions []rules.Question
	if err := json.Unmarshal([]byte(args[0].String()), &questions); err != nil {
		return jsError(fmt.Sprintf("invalid questions: %v", err))
	}

	answers, err := parseAnswers(args[1].String())
	if err != nil {
		return jsError(err.Error())
	}

	out, err := json.Marshal(rules.ValidateFormSubmission(questions, answers))
	if err != nil {
		return jsError(err.Error())
	}
	return string(out)
}

func parseAnswers(raw string) (rules.AnswerSet, error) {
	values := map[string]any{}
	if raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("invalid answers: %v", err)
		}
	}
	return rules.ParseAnswers(values), nil
}

func jsError(message string) any {
	return js.Global().Get("Error").New(message)
}
