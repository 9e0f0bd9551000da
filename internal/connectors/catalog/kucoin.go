package catalog

import "github.com/kolibri-trade/kolibri/internal/connectors/registry"

func kucoinSpec() registry.Spec {
	return registry.Spec{
		Name:        "kucoin",
		Type:        registry.TypeExchange,
		Centralized: true,
		ExamplePair: "ETH-USDT",
		DefaultFees: []float64{0.1, 0.1},
		Keys: &registry.ConfigSchema{
			Fields: []registry.SecretField{
				{Name: "kucoin_api_key", Sensitive: true},
				{Name: "kucoin_secret_key", Sensitive: true},
				{Name: "kucoin_passphrase", Sensitive: true},
			},
		},
	}
}
