package llm

import (
	"encoding/json"
	"strings"

	"github.com/truenorth-finance/truenorth/internal/model"
)

const (
	reasonBulk    = "Bulk Analysis"
	reasonSkipped = "Skipped by LLM"
)

// BuildPrompt renders a chunk as one "id|description|amount|date" line per
// transaction, preceded by the category set and the expected answer shape.
func BuildPrompt(chunk []model.Transaction) string {
	var sb strings.Builder
	sb.WriteString("Categorize: ")
	sb.WriteString(strings.Join(model.Categories(), ","))
	sb.WriteString(".\n")
	sb.WriteString(`JSON:{"results":[{"id","category","cleanMerchantName","isSubscription":bool,"isRecurring":bool,"confidence":0-1}]}.`)
	sb.WriteString("\nData:\n")
	for i, t := range chunk {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.ID)
		sb.WriteByte('|')
		sb.WriteString(strings.ReplaceAll(t.Description, "|", " "))
		sb.WriteByte('|')
		sb.WriteString(t.Amount.String())
		sb.WriteByte('|')
		sb.WriteString(t.Date.Format("2006-01-02"))
	}
	return sb.String()
}

type responseItem struct {
	ID                string   `json:"id"`
	Category          string   `json:"category"`
	CleanMerchantName string   `json:"cleanMerchantName"`
	IsSubscription    bool     `json:"isSubscription"`
	IsRecurring       bool     `json:"isRecurring"`
	Confidence        *float64 `json:"confidence"`
}

type response struct {
	Results []responseItem `json:"results"`
}

// ParseResponse decodes a model answer for chunk. Every transaction in chunk
// gets exactly one result: ids the model skipped get a "Skipped by LLM"
// placeholder, unknown categories become Uncategorized and ids outside the
// chunk are ignored. An empty or undecodable body is a KindParseFailure.
func ParseResponse(body string, chunk []model.Transaction) (map[string]model.AnalysisResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, parseFailure("No content received", nil)
	}

	var resp response
	if err := json.Unmarshal([]byte(extractJSON(body)), &resp); err != nil {
		return nil, parseFailure("Invalid JSON response from LLM", err)
	}

	wanted := make(map[string]bool, len(chunk))
	for _, t := range chunk {
		wanted[t.ID] = true
	}

	results := make(map[string]model.AnalysisResult, len(chunk))
	for _, item := range resp.Results {
		if item.ID == "" || !wanted[item.ID] {
			continue
		}
		category := item.Category
		if !model.IsValidCategory(category) {
			category = string(model.CategoryUncategorized)
		}
		var confidence float64
		if item.Confidence != nil {
			confidence = min(max(*item.Confidence, 0), 1)
		}
		results[item.ID] = model.AnalysisResult{
			Category:          category,
			CleanMerchantName: strings.TrimSpace(item.CleanMerchantName),
			IsSubscription:    item.IsSubscription,
			IsRecurring:       item.IsRecurring,
			Confidence:        confidence,
			Reasoning:         reasonBulk,
		}
	}

	for _, t := range chunk {
		if _, ok := results[t.ID]; !ok {
			results[t.ID] = fallback(reasonSkipped)
		}
	}
	return results, nil
}

// extractJSON strips prose or code fences around the outermost object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func fallback(reason string) model.AnalysisResult {
	return model.AnalysisResult{
		Category:   string(model.CategoryUncategorized),
		Confidence: 0,
		Reasoning:  reason,
	}
}
