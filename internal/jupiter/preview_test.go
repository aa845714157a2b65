// internal/jupiter/preview_test.go
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorlin/swapcord/internal/settings"
)

func TestBuildPreview_DefaultBuyScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/token/"):
			_ = json.NewEncoder(w).Encode(TokenMetadata{
				Address: testMint, Symbol: "X", Name: "Token X", Decimals: 6,
			})
		case r.URL.Path == "/v6/quote":
			fmt.Fprint(w, `{
                "inputMint": "`+WrappedSOLMint+`",
                "outputMint": "`+testMint+`",
                "inAmount": "100000000",
                "outAmount": "500000000",
                "priceImpactPct": "0.004"
            }`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL, server.URL)
	preview, err := c.BuildPreview(context.Background(), 100000000, WrappedSOLMint, testMint, settings.Default())
	require.NoError(t, err)

	assert.InDelta(t, 0.1, preview.InAmount, 1e-12)
	assert.InDelta(t, 500, preview.OutAmount, 1e-9)
	assert.Equal(t, "SOL", preview.InputToken.Symbol)
	assert.Equal(t, "X", preview.OutputToken.Symbol)

	text := preview.Text()
	assert.Contains(t, text, "Price Impact: 0.4%")
	assert.Contains(t, text, "0.1")
	assert.Contains(t, text, "500 X")
	assert.Contains(t, text, "Slippage: 1% (fixed)")
	assert.Contains(t, text, "Speed: medium")
	assert.Contains(t, text, "MEV: off")
	assert.Contains(t, text, "Wrap SOL: on")
}

func TestBuildPreview_MetadataFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testClient(t, server.URL, server.URL)
	_, err := c.BuildPreview(context.Background(), 1000, WrappedSOLMint, testMint, settings.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token info")
}

func TestDescribeSlippage(t *testing.T) {
	cfg := settings.Default()
	cfg.SlippageBps = 250
	assert.Equal(t, "2.5% (fixed)", describeSlippage(cfg))

	cfg.SlippageMode = settings.SlippageDynamic
	assert.Equal(t, "dynamic (max 3%)", describeSlippage(cfg))
}
