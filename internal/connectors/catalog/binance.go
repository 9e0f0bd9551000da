package catalog

import "github.com/kolibri-trade/kolibri/internal/connectors/registry"

func binanceSpec() registry.Spec {
	return registry.Spec{
		Name:        "binance",
		Type:        registry.TypeExchange,
		Centralized: true,
		ExamplePair: "ZRX-ETH",
		DefaultFees: []float64{0.1, 0.1},
		Keys: &registry.ConfigSchema{
			Fields: []registry.SecretField{
				{Name: "binance_api_key", Sensitive: true},
				{Name: "binance_api_secret", Sensitive: true},
			},
		},
		OtherDomains: []registry.DomainSpec{
			{
				Name:            "binance_us",
				DomainParameter: "us",
				ExamplePair:     "BTC-USDT",
				DefaultFees:     []float64{0.1, 0.1},
				Keys: &registry.ConfigSchema{
					Fields: []registry.SecretField{
						{Name: "binance_us_api_key", Sensitive: true},
						{Name: "binance_us_api_secret", Sensitive: true},
					},
				},
			},
		},
	}
}

func binancePerpetualSpec() registry.Spec {
	return registry.Spec{
		Name:        "binance_perpetual",
		Type:        registry.TypeDerivative,
		Centralized: true,
		ExamplePair: "BTC-USDT",
		DefaultFees: []float64{0.02, 0.04},
		Keys: &registry.ConfigSchema{
			Fields: []registry.SecretField{
				{Name: "binance_perpetual_api_key", Sensitive: true},
				{Name: "binance_perpetual_api_secret", Sensitive: true},
			},
		},
		OtherDomains: []registry.DomainSpec{
			{
				Name:            "binance_perpetual_testnet",
				DomainParameter: "testnet",
				ExamplePair:     "BTC-USDT",
				// Inherits the parent fee schema.
				Keys: &registry.ConfigSchema{
					Fields: []registry.SecretField{
						{Name: "binance_perpetual_testnet_api_key", Sensitive: true},
						{Name: "binance_perpetual_testnet_api_secret", Sensitive: true},
					},
				},
			},
		},
	}
}
