package registry

import (
	"strings"

	"github.com/kolibri-trade/kolibri/internal/secrets/vault"
	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// SecretSource is the slice of the credential vault the registry needs:
// read-only snapshot access to decrypted secret bundles.
type SecretSource interface {
	SecretsFor(connector string) (vault.SecretBundle, bool)
}

// Params is the resolved parameter bundle handed to a connector factory.
type Params struct {
	ConnectorName   string
	TradingPairs    []string
	TradingRequired bool

	// Keys is the decrypted secret bundle. For sub-domain connectors the
	// keys are already renamed to the parent's naming scheme.
	Keys vault.SecretBundle

	// Domain is the sub-domain parameter ("us", "testnet", ...), empty for
	// every other variant.
	Domain string

	// Gateway carries the on-chain connection for gateway variants.
	Gateway *GatewayConnection

	// AdditionalSpenders is populated for gateway AMM variants only.
	AdditionalSpenders []string

	// APIDataSource is attached for gateway CLOB variants only.
	APIDataSource APIDataSource

	// Configuration is the raw schema, set only when the connector's schema
	// requests full configuration passthrough.
	Configuration *ConfigSchema
}

// ResolveConstructionParams produces the construction parameters for the
// named connector. The branching is exhaustive over the variant set; an
// unrecognized variant is a fatal configuration error.
func (r *Registry) ResolveConstructionParams(name string, tradingPairs []string, tradingRequired bool, secrets SecretSource) (Params, error) {
	d, ok := r.Get(name)
	if !ok {
		return Params{}, errors.ErrNotFound
	}

	params := Params{
		ConnectorName:   d.Name,
		TradingPairs:    tradingPairs,
		TradingRequired: tradingRequired,
	}

	switch v := d.Variant.(type) {
	case Standalone:
		if bundle, found := secrets.SecretsFor(d.Name); found {
			params.Keys = bundle
		}
	case PaperTrade:
		// Paper trading reuses the parent's credentials.
		if bundle, found := secrets.SecretsFor(v.Parent); found {
			params.Keys = bundle
		}
	case SubDomain:
		// The parent implementation is reused unmodified, so its naming
		// scheme must be restored on every key.
		if bundle, found := secrets.SecretsFor(d.Name); found {
			renamed := make(vault.SecretBundle, len(bundle))
			for key, value := range bundle {
				renamed[strings.Replace(key, d.Name, v.Parent, 1)] = value
			}
			params.Keys = renamed
		}
		params.Domain = v.DomainParameter
	case Gateway:
		conn, err := r.gateway.GetSpecFromMarketName(d.Name)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return Params{}, errors.NewConfigurationError(d.Name, "no gateway connection configured")
			}
			return Params{}, err
		}
		params.Gateway = &conn
		if d.Type.UsesCLOB() {
			source, err := r.buildAPIDataSource(d, conn, tradingPairs, tradingRequired)
			if err != nil {
				return Params{}, err
			}
			params.APIDataSource = source
		} else {
			params.AdditionalSpenders = conn.AdditionalSpenders
		}
	default:
		return Params{}, errors.NewConfigurationError(d.Name, "unknown connector variant %T", d.Variant)
	}

	if d.ConfigKeys != nil && d.ConfigKeys.ReceiveConnectorConfiguration {
		params.Configuration = d.ConfigKeys
	}
	return params, nil
}

func (r *Registry) buildAPIDataSource(d Descriptor, conn GatewayConnection, tradingPairs []string, tradingRequired bool) (APIDataSource, error) {
	r.mu.RLock()
	factory, ok := r.dataSources[conn.Connector]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewConfigurationError(d.Name,
			"no API data source registered for connector family %q", conn.Connector)
	}
	return factory(conn, tradingPairs, tradingRequired)
}
