package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// symbolResponse is the JSON shape requested from vision models
type symbolResponse struct {
	Symbol *string `json:"symbol"`
	Format string  `json:"format"`
}

// parseSymbolJSON parses the JSON response from a vision model
func parseSymbolJSON(text string) (Symbol, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return Symbol{}, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return Symbol{}, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var resp symbolResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Symbol{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	if resp.Symbol == nil {
		return Symbol{}, ErrNotFound
	}
	symbol := strings.TrimSpace(*resp.Symbol)
	if symbol == "" || strings.EqualFold(symbol, "null") {
		return Symbol{}, ErrNotFound
	}

	// Models sometimes echo the digits with spaces as printed on the label
	if isDigitGroups(symbol) {
		symbol = strings.ReplaceAll(symbol, " ", "")
	}

	return Symbol{
		Text:   symbol,
		Format: strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(resp.Format), "-", "_")),
	}, nil
}

// isDigitGroups reports whether s is only digits separated by single spaces
func isDigitGroups(s string) bool {
	if !strings.Contains(s, " ") {
		return false
	}
	for _, group := range strings.Split(s, " ") {
		if group == "" {
			return false
		}
		for _, r := range group {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
