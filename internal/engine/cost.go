package engine

import "github.com/namphamdev/claw-router/internal/registry"

// calculateCost prices a completion against the candidate's configured
// model, replacing the teacher's hardcoded model-name pricing map
// (internal/llm/cost_tracker.go's CalculateCost) with the per-Model
// InputCostPer1M/OutputCostPer1M fields SPEC_FULL.md §3 puts under config
// control, so adding a model never requires a code change.
func calculateCost(model registry.Model, promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) / 1_000_000 * model.InputCostPer1M
	outputCost := float64(completionTokens) / 1_000_000 * model.OutputCostPer1M
	return inputCost + outputCost
}
