package catalog

import "github.com/kolibri-trade/kolibri/internal/connectors/registry"

func ascendExSpec() registry.Spec {
	return registry.Spec{
		Name:        "ascend_ex",
		Type:        registry.TypeExchange,
		Centralized: true,
		ExamplePair: "BTC-USDT",
		DefaultFees: []float64{0.1, 0.1},
		Keys: &registry.ConfigSchema{
			Fields: []registry.SecretField{
				{Name: "ascend_ex_api_key", Sensitive: true},
				{Name: "ascend_ex_secret_key", Sensitive: true},
				{Name: "ascend_ex_group_id", Sensitive: false},
			},
		},
	}
}
