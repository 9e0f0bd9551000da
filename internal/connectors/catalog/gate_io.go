package catalog

import "github.com/kolibri-trade/kolibri/internal/connectors/registry"

func gateIOSpec() registry.Spec {
	return registry.Spec{
		Name:        "gate_io",
		Type:        registry.TypeExchange,
		Centralized: true,
		ExamplePair: "BTC-USDT",
		DefaultFees: []float64{0.2, 0.2},
		Keys: &registry.ConfigSchema{
			Fields: []registry.SecretField{
				{Name: "gate_io_api_key", Sensitive: true},
				{Name: "gate_io_secret_key", Sensitive: true},
			},
		},
	}
}
