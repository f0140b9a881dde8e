package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/insurelane/surveyd/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	rangeDefaultMin = 0.0
	rangeDefaultMax = 100.0
)

// ValidationResult is the total outcome of validating one raw answer. Cleaned
// is non-nil only when the answer passed every rule.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
	Cleaned any      `json:"cleaned_value"`
}

// ResponseValidator checks a raw answer against a question's declared type and
// rule-set. Validation is total: it never returns an error and never panics up
// to its caller.
type ResponseValidator interface {
	Validate(question *model.SurveyQuestion, raw any) ValidationResult
}

type responseValidator struct{}

func NewResponseValidator() ResponseValidator {
	return &responseValidator{}
}

func (v *responseValidator) Validate(question *model.SurveyQuestion, raw any) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Uint("questionID", question.ID).Msg("Panic while validating response")
			result = invalid("Validation error occurred")
		}
	}()

	if isEmpty(raw) {
		if question.IsRequired {
			return invalid("This question is required")
		}
		return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: nil}
	}

	rules, err := question.Rules()
	if err != nil {
		log.Error().Err(err).Uint("questionID", question.ID).Msg("Malformed validation rules")
		return invalid("Validation error occurred")
	}

	switch question.QuestionType {
	case model.QuestionTypeText:
		return v.validateText(rules, raw)
	case model.QuestionTypeNumber:
		return v.validateNumber(rules, raw)
	case model.QuestionTypeChoice:
		return v.validateChoice(question, raw)
	case model.QuestionTypeMultiChoice:
		return v.validateMultiChoice(question, rules, raw)
	case model.QuestionTypeRange:
		return v.validateRange(rules, raw)
	case model.QuestionTypeBoolean:
		return v.validateBoolean(raw)
	default:
		return invalid(fmt.Sprintf("Unsupported question type: %s", question.QuestionType))
	}
}

func (v *responseValidator) validateText(rules model.ValidationRules, raw any) ValidationResult {
	text, ok := raw.(string)
	if !ok {
		text = fmt.Sprintf("%v", raw)
	}

	var errs []string
	length := utf8.RuneCountInString(text)
	if rules.MinLength != nil && length < *rules.MinLength {
		errs = append(errs, fmt.Sprintf("Response must be at least %d characters long", *rules.MinLength))
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		errs = append(errs, fmt.Sprintf("Response must be no more than %d characters long", *rules.MaxLength))
	}
	if rules.Pattern != nil {
		// Anchored at the start only; a trailing remainder still matches.
		re, err := regexp.Compile("^(?:" + *rules.Pattern + ")")
		if err != nil || !re.MatchString(text) {
			message := "Invalid format"
			if rules.PatternDescription != nil {
				message = *rules.PatternDescription
			}
			errs = append(errs, message)
		}
	}

	if len(errs) > 0 {
		return ValidationResult{IsValid: false, Errors: errs, Cleaned: nil}
	}
	return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: strings.TrimSpace(text)}
}

func (v *responseValidator) validateNumber(rules model.ValidationRules, raw any) ValidationResult {
	value, ok := parseDecimal(raw)
	if !ok {
		return invalid("Please enter a valid number")
	}

	var errs []string
	if rules.MinValue != nil {
		if min, err := decimal.NewFromString(rules.MinValue.String()); err == nil && value.LessThan(min) {
			errs = append(errs, fmt.Sprintf("Value must be at least %s", rules.MinValue.String()))
		}
	}
	if rules.MaxValue != nil {
		if max, err := decimal.NewFromString(rules.MaxValue.String()); err == nil && value.GreaterThan(max) {
			errs = append(errs, fmt.Sprintf("Value must be no more than %s", rules.MaxValue.String()))
		}
	}
	if rules.DecimalPlaces != nil && decimalPlaces(value) > *rules.DecimalPlaces {
		errs = append(errs, fmt.Sprintf("Maximum %d decimal places allowed", *rules.DecimalPlaces))
	}

	if len(errs) > 0 {
		return ValidationResult{IsValid: false, Errors: errs, Cleaned: nil}
	}
	return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: value.InexactFloat64()}
}

func (v *responseValidator) validateChoice(question *model.SurveyQuestion, raw any) ValidationResult {
	values, err := question.ChoiceValues()
	if err != nil || len(values) == 0 {
		return invalid("No choices available for this question")
	}
	for _, value := range values {
		if looseValueEqual(raw, value) {
			return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: raw}
		}
	}
	return invalid("Please select a valid option")
}

func (v *responseValidator) validateMultiChoice(question *model.SurveyQuestion, rules model.ValidationRules, raw any) ValidationResult {
	values, err := question.ChoiceValues()
	if err != nil || len(values) == 0 {
		return invalid("No choices available for this question")
	}

	selections, ok := asSequence(raw)
	if !ok {
		return invalid("Multiple choice response must be a list")
	}

	var errs []string
	for _, selected := range selections {
		found := false
		for _, value := range values {
			if looseValueEqual(selected, value) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("Invalid choice: %v", selected))
		}
	}

	if rules.MinSelections != nil && len(selections) < *rules.MinSelections {
		errs = append(errs, fmt.Sprintf("Please select at least %d option(s)", *rules.MinSelections))
	}
	if rules.MaxSelections != nil && len(selections) > *rules.MaxSelections {
		errs = append(errs, fmt.Sprintf("Please select no more than %d option(s)", *rules.MaxSelections))
	}

	if len(errs) > 0 {
		return ValidationResult{IsValid: false, Errors: errs, Cleaned: nil}
	}
	return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: selections}
}

func (v *responseValidator) validateRange(rules model.ValidationRules, raw any) ValidationResult {
	value, ok := parseFloat(raw)
	if !ok {
		return invalid("Please enter a valid number")
	}

	min := rangeDefaultMin
	max := rangeDefaultMax
	if rules.MinValue != nil {
		if f, err := rules.MinValue.Float64(); err == nil {
			min = f
		}
	}
	if rules.MaxValue != nil {
		if f, err := rules.MaxValue.Float64(); err == nil {
			max = f
		}
	}

	var errs []string
	if value < min {
		errs = append(errs, fmt.Sprintf("Value must be at least %v", min))
	}
	if value > max {
		errs = append(errs, fmt.Sprintf("Value must be no more than %v", max))
	}
	// Exact modulo check, no epsilon. Fractional steps can misalign on float
	// representation; this preserves the observed production behavior.
	if rules.Step != nil && *rules.Step != 0 && math.Mod(value-min, *rules.Step) != 0 {
		errs = append(errs, fmt.Sprintf("Value must be in increments of %v", *rules.Step))
	}

	if len(errs) > 0 {
		return ValidationResult{IsValid: false, Errors: errs, Cleaned: nil}
	}
	return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: value}
}

func (v *responseValidator) validateBoolean(raw any) ValidationResult {
	switch value := raw.(type) {
	case bool:
		return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: value}
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "y", "1":
			return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: true}
		case "false", "no", "n", "0":
			return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: false}
		}
		return invalid("Please select Yes or No")
	default:
		if f, ok := parseNumeric(raw); ok {
			return ValidationResult{IsValid: true, Errors: []string{}, Cleaned: f != 0}
		}
		return invalid("Please select Yes or No")
	}
}

func invalid(message string) ValidationResult {
	return ValidationResult{IsValid: false, Errors: []string{message}, Cleaned: nil}
}

func isEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && s == ""
}

// parseDecimal accepts numeric or string input, normalizing a decimal comma to
// a decimal point before parsing.
func parseDecimal(raw any) (decimal.Decimal, bool) {
	switch value := raw.(type) {
	case string:
		normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
		d, err := decimal.NewFromString(normalized)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(value), true
	case float32:
		return decimal.NewFromFloat32(value), true
	case int:
		return decimal.NewFromInt(int64(value)), true
	case int64:
		return decimal.NewFromInt(value), true
	}
	return decimal.Decimal{}, false
}

// decimalPlaces counts digits after the decimal separator as the value was
// given, trailing zeros included.
func decimalPlaces(d decimal.Decimal) int {
	if d.Exponent() >= 0 {
		return 0
	}
	return int(-d.Exponent())
}

func parseFloat(raw any) (float64, bool) {
	if f, ok := parseNumeric(raw); ok {
		return f, true
	}
	if s, ok := raw.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func parseNumeric(raw any) (float64, bool) {
	switch value := raw.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	}
	return 0, false
}

func asSequence(raw any) ([]any, bool) {
	switch value := raw.(type) {
	case []any:
		return value, true
	case []string:
		seq := make([]any, len(value))
		for i, s := range value {
			seq[i] = s
		}
		return seq, true
	}
	return nil, false
}

// looseValueEqual compares a submitted value against a configured choice value
// with JSON number semantics (1 == 1.0).
func looseValueEqual(a, b any) bool {
	af, aok := parseNumeric(a)
	bf, bok := parseNumeric(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
