package usecase

import (
	"encoding/json"
	"time"

	"PriceAggregator/internal/ports"
	"PriceAggregator/internal/pricing"
)

// BuildReportJSON renders a run as JSON for the command line.
func BuildReportJSON(run ports.Run) ([]byte, error) {
	type price struct {
		Amount  string `json:"amount"`
		Display string `json:"display"`
	}
	type item struct {
		Store       string           `json:"store"`
		URL         string           `json:"url,omitempty"`
		ProductType string           `json:"product_type,omitempty"`
		Name        string           `json:"name,omitempty"`
		Prices      map[string]price `json:"prices,omitempty"`
		Available   bool             `json:"available"`
		Error       string           `json:"error,omitempty"`
	}
	type report struct {
		RunID     string    `json:"run_id"`
		StartedAt time.Time `json:"started_at"`
		Duration  string    `json:"duration"`
		Summary   Summary   `json:"summary"`
		Results   []item    `json:"results"`
	}

	payload := report{
		RunID:     run.ID,
		StartedAt: run.StartedAt,
		Duration:  run.Duration.String(),
		Summary:   Summarize(run.Results),
		Results:   make([]item, 0, len(run.Results)),
	}
	for _, r := range run.Results {
		it := item{
			Store:       r.StoreID,
			URL:         r.URL,
			ProductType: string(r.ProductType),
			Name:        r.Product.Name,
			Available:   !r.Failed() && r.Product.Prices.Available(),
		}
		if r.Failed() {
			it.Error = r.Err.Error()
		} else if len(r.Product.Prices) > 0 {
			it.Prices = make(map[string]price, len(r.Product.Prices))
			for method, amount := range r.Product.Prices {
				it.Prices[method] = price{Amount: amount.String(), Display: pricing.FormatCurrency(amount)}
			}
		}
		payload.Results = append(payload.Results, it)
	}

	return json.MarshalIndent(payload, "", "  ")
}
