package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cryptofolio/pkg/models"
)

const defaultAPIURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSource fetches quotes from the CoinGecko API (free, no API key needed)
type CoinGeckoSource struct {
	client  *http.Client
	baseURL string
}

// NewCoinGeckoSource creates new CoinGecko quote source
func NewCoinGeckoSource(timeout time.Duration) *CoinGeckoSource {
	return &CoinGeckoSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultAPIURL,
	}
}

// GetQuotes returns current USD prices and 24h changes for the given asset ids
// in a single batch request
func (cg *CoinGeckoSource) GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error) {
	if len(assetIDs) == 0 {
		return map[string]models.Quote{}, nil
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true",
		cg.baseURL, strings.Join(assetIDs, ","))

	req, err := http.NewRequestWithContext(ctx, "GET", url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cg.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]struct {
		USD       float64 `json:"usd"`
		USDChange float64 `json:"usd_24h_change"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	quotes := make(map[string]models.Quote, len(result))
	var missing []string
	for _, assetID := range assetIDs {
		data, ok := result[assetID]
		if !ok {
			missing = append(missing, assetID)
			continue
		}
		quotes[assetID] = models.Quote{
			Price:     models.NewDecimal(data.USD),
			Change24h: data.USDChange,
		}
	}

	// CoinGecko drops unknown ids from the response instead of failing the
	// request. A holding without a quote cannot be valued, so surface it.
	if len(missing) > 0 {
		return nil, fmt.Errorf("no quotes returned for assets: %s", strings.Join(missing, ", "))
	}

	return quotes, nil
}
