package provider

import (
	"testing"

	"github.com/alfreddev/aigateway/config"
)

func testPricing() *Pricing {
	return NewPricing(&config.Config{
		Models: map[string]config.Model{
			"qwen3_42b": {ID: "qwen3_42b", InputPricePerTok: 0.000001, OutputPricePerTk: 0.000002},
		},
	})
}

func TestCalculateCostAppliesPerTokenRates(t *testing.T) {
	p := testPricing()
	cost := p.CalculateCost("qwen3_42b", 1000, 500)
	want := 1000*0.000001 + 500*0.000002
	if cost != want {
		t.Fatalf("expected cost %v, got %v", want, cost)
	}
}

func TestCalculateCostUnknownModelReturnsZero(t *testing.T) {
	p := testPricing()
	if cost := p.CalculateCost("does-not-exist", 1000, 500); cost != 0 {
		t.Fatalf("expected 0 for an unknown model, got %v", cost)
	}
}

func TestEstimateCostMatchesCalculateCost(t *testing.T) {
	p := testPricing()
	if p.EstimateCost("qwen3_42b", 100, 50) != p.CalculateCost("qwen3_42b", 100, 50) {
		t.Fatal("expected EstimateCost to delegate to the same rate calculation as CalculateCost")
	}
}
