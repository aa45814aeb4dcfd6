package costs

import "strings"

const perMillion = 1_000_000.0

// EstimateAnthropicUSD returns estimated USD cost for Anthropic models.
// Returns ok=false when no known fallback pricing exists for the model.
func EstimateAnthropicUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var inputPerMillion float64
	var outputPerMillion float64

	switch {
	case strings.Contains(modelName, "haiku"):
		inputPerMillion = 0.80
		outputPerMillion = 4.00
	case strings.Contains(modelName, "sonnet"):
		inputPerMillion = 3.00
		outputPerMillion = 15.00
	case strings.Contains(modelName, "opus"):
		inputPerMillion = 15.00
		outputPerMillion = 75.00
	default:
		return 0, false
	}

	inputCost := (float64(inputTokens) / perMillion) * inputPerMillion
	outputCost := (float64(outputTokens) / perMillion) * outputPerMillion
	return inputCost + outputCost, true
}

// EstimateOpenAIUSD returns estimated USD cost for OpenAI models.
// Returns ok=false when no known fallback pricing exists for the model.
func EstimateOpenAIUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var inputPerMillion float64
	var outputPerMillion float64

	switch {
	case strings.Contains(modelName, "mini"):
		inputPerMillion = 0.15
		outputPerMillion = 0.60
	case strings.Contains(modelName, "gpt-4o"):
		inputPerMillion = 2.50
		outputPerMillion = 10.00
	case strings.Contains(modelName, "gpt-4.1"):
		inputPerMillion = 2.00
		outputPerMillion = 8.00
	default:
		return 0, false
	}

	inputCost := (float64(inputTokens) / perMillion) * inputPerMillion
	outputCost := (float64(outputTokens) / perMillion) * outputPerMillion
	return inputCost + outputCost, true
}

// EstimateGeminiUSD returns estimated USD cost for Google Gemini models.
// Returns ok=false when no known fallback pricing exists for the model.
func EstimateGeminiUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var inputPerMillion float64
	var outputPerMillion float64

	switch {
	case strings.Contains(modelName, "flash-lite"):
		inputPerMillion = 0.075
		outputPerMillion = 0.30
	case strings.Contains(modelName, "flash"):
		inputPerMillion = 0.10
		outputPerMillion = 0.40
	case strings.Contains(modelName, "pro"):
		inputPerMillion = 1.25
		outputPerMillion = 10.00
	default:
		return 0, false
	}

	inputCost := (float64(inputTokens) / perMillion) * inputPerMillion
	outputCost := (float64(outputTokens) / perMillion) * outputPerMillion
	return inputCost + outputCost, true
}

// EstimateUSD returns fallback estimated USD cost for providers that do not
// report spend on the response. Returns ok=false for unknown providers or
// models so callers can record zero instead of a guess.
func EstimateUSD(providerName, model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	switch strings.ToLower(strings.TrimSpace(providerName)) {
	case "anthropic":
		return EstimateAnthropicUSD(model, inputTokens, outputTokens)
	case "openai":
		return EstimateOpenAIUSD(model, inputTokens, outputTokens)
	case "gemini":
		return EstimateGeminiUSD(model, inputTokens, outputTokens)
	default:
		return 0, false
	}
}
