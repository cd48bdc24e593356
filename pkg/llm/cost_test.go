package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plattargus/detalhar/pkg/llm"
)

func TestCuratorCostUSD(t *testing.T) {
	cost := llm.CuratorCostUSD(1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 1e-9)
}

func TestAnalystCostUSD(t *testing.T) {
	cost := llm.AnalystCostUSD(1_000_000, 1_000_000)
	assert.InDelta(t, 2.0, cost, 1e-9)
}

func TestCostsScaleLinearlyWithTokens(t *testing.T) {
	assert.InDelta(t, 0, llm.CuratorCostUSD(0, 0), 1e-9)
	assert.InDelta(t, llm.CuratorCostUSD(2000, 0), 2*llm.CuratorCostUSD(1000, 0), 1e-9)
}
