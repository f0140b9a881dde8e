package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/insurelane/surveyd/internal/cache"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const (
	fallbackCachePrefix = "fallback_info:"
	fallbackCacheTTL    = time.Hour
)

type SectionStats struct {
	Responses   int     `json:"responses"`
	TotalWeight float64 `json:"total_weight"`
}

type ResponseAnalysis struct {
	HasCriticalData           bool                    `json:"has_critical_data"`
	SectionsCompleted         []string                `json:"sections_completed"`
	CriticalSectionsCompleted []string                `json:"critical_sections_completed,omitempty"`
	CriticalSectionsMissing   []string                `json:"critical_sections_missing"`
	ResponseCount             int                     `json:"response_count"`
	ConfidenceAverage         float64                 `json:"confidence_average"`
	SectionAnalysis           map[string]SectionStats `json:"section_analysis,omitempty"`
}

type DegradationOption struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recommended bool   `json:"recommended"`
}

type DegradationResult struct {
	Strategy             string              `json:"strategy"`
	Success              bool                `json:"success"`
	CompletionPercentage float64             `json:"completion_percentage"`
	DataQuality          *ResponseAnalysis   `json:"data_quality,omitempty"`
	ComparisonType       string              `json:"comparison_type,omitempty"`
	Options              []DegradationOption `json:"options,omitempty"`
	Message              string              `json:"message"`
}

type FallbackInfo struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CriteriaCount int       `json:"criteria_count"`
	HasSurveyData bool      `json:"has_survey_data"`
	Message       string    `json:"message"`
}

type FallbackResult struct {
	Success             bool           `json:"success"`
	FallbackType        string         `json:"fallback_type"`
	Criteria            map[string]any `json:"criteria,omitempty"`
	FallbackInfo        *FallbackInfo  `json:"fallback_info,omitempty"`
	ComparisonAvailable bool           `json:"comparison_available"`
	Message             string         `json:"message"`
	Error               string         `json:"error,omitempty"`
}

type CriteriaValidation struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings,omitempty"`
	TotalWeight float64  `json:"total_weight,omitempty"`
}

// DegradationService keeps the comparison flow alive when survey data is
// missing or processing breaks. Every path ends in usable criteria; the
// emergency fallback is the floor and is not allowed to fail.
type DegradationService interface {
	HandleIncompleteSurveyData(ctx context.Context, session *model.Session, minCompletionThreshold float64) *DegradationResult
	ImplementFallbackComparison(ctx context.Context, session *model.Session, fallbackType string) *FallbackResult
	GetFallbackInfo(ctx context.Context, sessionKey string) (*FallbackInfo, error)
	ClearFallbackInfo(ctx context.Context, sessionKey string) error
	ValidateFallbackCriteria(criteria map[string]any) *CriteriaValidation
}

type degradationService struct {
	sessionRepo  repository.SessionRepository
	responseRepo repository.ResponseRepository
	progress     ProgressService
	cache        cache.Cache
}

func NewDegradationService(
	sessionRepo repository.SessionRepository,
	responseRepo repository.ResponseRepository,
	progress ProgressService,
	c cache.Cache,
) DegradationService {
	return &degradationService{
		sessionRepo:  sessionRepo,
		responseRepo: responseRepo,
		progress:     progress,
		cache:        c,
	}
}

// HandleIncompleteSurveyData decides how to proceed with a partially answered
// survey. Above the threshold it picks a comparison type from the data
// quality; below it the user gets explicit options instead of a silent
// downgrade.
func (s *degradationService) HandleIncompleteSurveyData(ctx context.Context, session *model.Session, minCompletionThreshold float64) *DegradationResult {
	if minCompletionThreshold <= 0 {
		minCompletionThreshold = 30.0
	}

	progress, err := s.progress.Progress(session)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to compute completion for degradation")
		emergency := s.emergencyFallback(session, err)
		return &DegradationResult{
			Strategy:       "emergency",
			Success:        emergency.Success,
			ComparisonType: emergency.FallbackType,
			Message:        emergency.Message,
		}
	}
	completion := progress.CompletionPercentage

	analysis := s.analyzeExistingResponses(session)

	if completion >= minCompletionThreshold {
		if analysis.HasCriticalData {
			return &DegradationResult{
				Strategy:             "proceed_with_partial",
				Success:              true,
				CompletionPercentage: completion,
				DataQuality:          analysis,
				ComparisonType:       "partial_personalized",
				Message:              "Sufficient data available for personalized comparison",
			}
		}
		return &DegradationResult{
			Strategy:             "enhanced_basic",
			Success:              true,
			CompletionPercentage: completion,
			DataQuality:          analysis,
			ComparisonType:       "enhanced_basic",
			Message:              "Using enhanced basic comparison with available data",
		}
	}

	return &DegradationResult{
		Strategy:             "offer_options",
		Success:              false,
		CompletionPercentage: completion,
		DataQuality:          analysis,
		Options: []DegradationOption{
			{Type: "continue_survey", Message: "Complete more questions for better recommendations", Recommended: completion > 10},
			{Type: "basic_comparison", Message: "View basic comparison without personalization", Recommended: true},
			{Type: "category_defaults", Message: "Use popular choices for your category", Recommended: false},
		},
		Message: "More information needed for personalized recommendations",
	}
}

// analyzeExistingResponses summarizes what the session already has: which
// sections were touched, whether enough critical sections are present, and
// how confident the answers are.
func (s *degradationService) analyzeExistingResponses(session *model.Session) *ResponseAnalysis {
	empty := &ResponseAnalysis{
		SectionsCompleted:       []string{},
		CriticalSectionsMissing: []string{},
	}

	responses, err := s.responseRepo.FindBySession(session.ID)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to analyze responses")
		return empty
	}
	if len(responses) == 0 {
		return empty
	}

	sections := map[string]SectionStats{}
	totalConfidence := 0
	for _, resp := range responses {
		stats := sections[resp.Question.Section]
		stats.Responses++
		stats.TotalWeight += resp.Question.WeightImpact
		sections[resp.Question.Section] = stats
		totalConfidence += resp.ConfidenceLevel
	}

	critical := criticalSections(session.Category.Slug)
	var completedCritical, missingCritical []string
	for _, section := range critical {
		if _, ok := sections[section]; ok {
			completedCritical = append(completedCritical, section)
		} else {
			missingCritical = append(missingCritical, section)
		}
	}

	sectionNames := make([]string, 0, len(sections))
	for name := range sections {
		sectionNames = append(sectionNames, name)
	}

	return &ResponseAnalysis{
		HasCriticalData:           float64(len(completedCritical)) >= float64(len(critical))*0.6,
		SectionsCompleted:         sectionNames,
		CriticalSectionsCompleted: completedCritical,
		CriticalSectionsMissing:   missingCritical,
		ResponseCount:             len(responses),
		ConfidenceAverage:         float64(totalConfidence) / float64(len(responses)),
		SectionAnalysis:           sections,
	}
}

func criticalSections(categorySlug string) []string {
	switch categorySlug {
	case "health":
		return []string{"Personal Information", "Health Status", "Coverage Preferences"}
	case "funeral":
		return []string{"Family Structure", "Coverage Requirements", "Budget & Payment"}
	default:
		return []string{"Personal Information", "Coverage Preferences"}
	}
}

// ImplementFallbackComparison builds criteria for the requested fallback
// type, persists them on the session and caches a notice for the UI.
func (s *degradationService) ImplementFallbackComparison(ctx context.Context, session *model.Session, fallbackType string) *FallbackResult {
	var criteria map[string]any
	hasSurveyData := false

	switch fallbackType {
	case "partial_personalized":
		criteria = s.partialPersonalizedCriteria(session)
		hasSurveyData = true
	case "enhanced_basic":
		criteria = enhancedBasicCriteria(session.Category.Slug)
	case "category_defaults":
		criteria = categoryDefaultCriteria(session.Category.Slug)
	default:
		fallbackType = "basic"
		criteria = basicCriteria(session.Category.Slug)
	}

	session.Criteria = datatypes.JSONMap(criteria)
	session.FallbackMode = true
	session.FallbackType = fallbackType
	if err := s.sessionRepo.Update(session); err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to persist fallback criteria")
		return s.emergencyFallback(session, err)
	}

	info := &FallbackInfo{
		Type:          fallbackType,
		Timestamp:     time.Now(),
		CriteriaCount: len(criteria),
		HasSurveyData: hasSurveyData,
		Message:       fallbackMessage(fallbackType),
	}
	if err := s.cache.Set(ctx, fallbackCachePrefix+session.SessionKey, info, fallbackCacheTTL); err != nil {
		log.Warn().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to cache fallback info")
	}

	return &FallbackResult{
		Success:             true,
		FallbackType:        fallbackType,
		Criteria:            criteria,
		FallbackInfo:        info,
		ComparisonAvailable: true,
		Message:             info.Message,
	}
}

// partialPersonalizedCriteria nudges the category baseline with whatever
// answers exist. Confidence scales every weight, then weights are normalized
// back under 1.0.
func (s *degradationService) partialPersonalizedCriteria(session *model.Session) map[string]any {
	criteria := basicCriteria(session.Category.Slug)

	responses, err := s.responseRepo.FindBySession(session.ID)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to load responses for personalization")
		return criteria
	}

	for _, resp := range responses {
		value, err := resp.Value()
		if err != nil {
			continue
		}

		switch resp.Question.FieldName {
		case "budget_range":
			if premium, ok := asFloat(value); ok {
				criteria["max_premium"] = premium
				current, _ := asFloat(criteria["premium_weight"])
				if current == 0 {
					current = 0.3
				}
				criteria["premium_weight"] = min(0.6, current+0.1)
			}
		case "coverage_priority":
			if value != nil && strings.Contains(strings.ToLower(fmt.Sprintf("%v", value)), "high") {
				criteria["coverage_weight"] = 0.5
				minCov, ok := asFloat(criteria["min_coverage"])
				if !ok {
					minCov = 50000
				}
				criteria["min_coverage"] = minCov * 1.2
			}
		case "deductible_preference":
			criteria["preferred_deductible"] = value
			criteria["deductible_weight"] = resp.Question.WeightImpact * 0.1
		}

		// Low-confidence answers shrink weights, high-confidence ones grow
		// them. Each response applies the scale to every weight in turn.
		multiplier := 0.8 + 0.4*(float64(resp.ConfidenceLevel)/5.0)
		for key, v := range criteria {
			if !strings.HasSuffix(key, "_weight") {
				continue
			}
			if weight, ok := asFloat(v); ok {
				criteria[key] = weight * multiplier
			}
		}
	}

	totalWeight := 0.0
	for key, v := range criteria {
		if strings.HasSuffix(key, "_weight") {
			if weight, ok := asFloat(v); ok {
				totalWeight += weight
			}
		}
	}
	if totalWeight > 1.0 {
		for key, v := range criteria {
			if strings.HasSuffix(key, "_weight") {
				if weight, ok := asFloat(v); ok {
					criteria[key] = weight / totalWeight
				}
			}
		}
	}

	criteria["personalization_level"] = "partial"
	criteria["data_sources"] = []string{"survey_partial", "category_defaults"}
	return criteria
}

func enhancedBasicCriteria(categorySlug string) map[string]any {
	criteria := basicCriteria(categorySlug)
	switch categorySlug {
	case "health":
		criteria["hospital_network_weight"] = 0.15
		criteria["day_to_day_weight"] = 0.25
		criteria["chronic_condition_weight"] = 0.1
		criteria["family_coverage_weight"] = 0.1
	case "funeral":
		criteria["waiting_period_weight"] = 0.15
		criteria["payout_speed_weight"] = 0.1
		criteria["family_size_weight"] = 0.1
		criteria["repatriation_weight"] = 0.05
	}
	criteria["personalization_level"] = "enhanced_basic"
	criteria["data_sources"] = []string{"category_intelligence", "popular_choices"}
	return criteria
}

func categoryDefaultCriteria(categorySlug string) map[string]any {
	criteria := basicCriteria(categorySlug)
	switch categorySlug {
	case "health":
		criteria["preferred_hospital_type"] = "private"
		criteria["preferred_excess"] = "medium"
		criteria["day_to_day_priority"] = "medium"
	case "funeral":
		criteria["preferred_coverage_amount"] = 25000
		criteria["preferred_waiting_period"] = 12
		criteria["family_coverage"] = true
	}
	criteria["personalization_level"] = "category_default"
	criteria["data_sources"] = []string{"category_defaults", "popular_choices"}
	return criteria
}

func basicCriteria(categorySlug string) map[string]any {
	switch categorySlug {
	case "health":
		return map[string]any{
			"premium_weight":        0.35,
			"coverage_weight":       0.40,
			"deductible_weight":     0.15,
			"network_weight":        0.10,
			"max_premium":           800,
			"min_coverage":          100000,
			"preferred_deductible":  "medium",
			"personalization_level": "basic",
			"data_sources":          []string{"system_defaults"},
		}
	case "funeral":
		return map[string]any{
			"premium_weight":        0.45,
			"coverage_weight":       0.40,
			"waiting_period_weight": 0.15,
			"max_premium":           150,
			"min_coverage":          15000,
			"max_waiting_period":    24,
			"personalization_level": "basic",
			"data_sources":          []string{"system_defaults"},
		}
	default:
		return map[string]any{
			"premium_weight":        0.50,
			"coverage_weight":       0.50,
			"max_premium":           500,
			"min_coverage":          50000,
			"personalization_level": "basic",
			"data_sources":          []string{"system_defaults"},
		}
	}
}

func fallbackMessage(fallbackType string) string {
	switch fallbackType {
	case "partial_personalized":
		return "Using your available responses for personalized recommendations"
	case "enhanced_basic":
		return "Using enhanced comparison based on your category preferences"
	case "category_defaults":
		return "Using popular choices for your insurance category"
	case "basic":
		return "Using basic comparison to show all available options"
	default:
		return "Using alternative comparison method"
	}
}

// emergencyFallback is the last line: minimal hard-coded criteria so a
// comparison is still possible. If even the save fails, the caller learns
// the comparison is unavailable rather than getting an error.
func (s *degradationService) emergencyFallback(session *model.Session, cause error) *FallbackResult {
	criteria := map[string]any{
		"premium_weight":        0.6,
		"coverage_weight":       0.4,
		"max_premium":           1000,
		"min_coverage":          25000,
		"personalization_level": "emergency",
		"data_sources":          []string{"emergency_fallback"},
	}

	session.Criteria = datatypes.JSONMap(criteria)
	session.FallbackMode = true
	session.FallbackType = "emergency"
	if cause != nil {
		session.FallbackReason = cause.Error()
	}
	if err := s.sessionRepo.Update(session); err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Bool("critical", true).Msg("Emergency fallback failed")
		return &FallbackResult{
			Success:             false,
			FallbackType:        "failed",
			ComparisonAvailable: false,
			Message:             "Comparison temporarily unavailable",
			Error:               err.Error(),
		}
	}

	result := &FallbackResult{
		Success:             true,
		FallbackType:        "emergency",
		Criteria:            criteria,
		ComparisonAvailable: true,
		Message:             "Using basic comparison due to technical issues",
	}
	if cause != nil {
		result.Error = cause.Error()
	}
	return result
}

// asFloat converts decoded JSON numbers. Strings are deliberately excluded;
// criteria adjustments only trust values that were stored as numbers.
func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (s *degradationService) GetFallbackInfo(ctx context.Context, sessionKey string) (*FallbackInfo, error) {
	var info FallbackInfo
	err := s.cache.Get(ctx, fallbackCachePrefix+sessionKey, &info)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback info: %w", err)
	}
	return &info, nil
}

func (s *degradationService) ClearFallbackInfo(ctx context.Context, sessionKey string) error {
	return s.cache.Delete(ctx, fallbackCachePrefix+sessionKey)
}

// ValidateFallbackCriteria sanity-checks criteria before they are handed to
// the comparison engine.
func (s *degradationService) ValidateFallbackCriteria(criteria map[string]any) *CriteriaValidation {
	var missing []string
	for _, field := range []string{"premium_weight", "coverage_weight"} {
		if _, ok := criteria[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		result := &CriteriaValidation{IsValid: false, Errors: []string{}}
		for _, field := range missing {
			result.Errors = append(result.Errors, fmt.Sprintf("Missing required field: %s", field))
		}
		return result
	}

	totalWeight := 0.0
	for key, v := range criteria {
		if strings.HasSuffix(key, "_weight") {
			if weight, ok := asFloat(v); ok {
				totalWeight += weight
			}
		}
	}
	if totalWeight <= 0 {
		return &CriteriaValidation{IsValid: false, Errors: []string{"Total weight must be greater than 0"}}
	}

	var warnings []string
	if totalWeight > 1.2 {
		warnings = append(warnings, "Total weights exceed 1.0 - will be normalized")
	}
	if maxPremium, ok := asFloat(criteria["max_premium"]); !ok || maxPremium <= 0 {
		warnings = append(warnings, "Max premium should be greater than 0")
	}

	return &CriteriaValidation{
		IsValid:     true,
		Errors:      []string{},
		Warnings:    warnings,
		TotalWeight: totalWeight,
	}
}
