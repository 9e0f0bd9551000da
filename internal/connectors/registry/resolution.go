package registry

import (
	"strings"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

const gatewayFactoryPrefix = "gateway/"

// resolutionKey derives the factory-table key for a descriptor. Non-gateway
// variants resolve to their base connector's registered factory; gateway
// variants resolve to a generic implementation, for AMM categories further
// narrowed by the connection's chain type.
func (r *Registry) resolutionKey(d Descriptor) (string, error) {
	gw, isGateway := d.Variant.(Gateway)
	if !isGateway {
		return d.BaseName(), nil
	}
	category := strings.ToLower(string(d.Type))
	if d.Type.IsAMM() {
		if gw.ChainType == "" {
			return "", errors.NewConfigurationError(d.Name, "gateway AMM connection has no chain type")
		}
		return gatewayFactoryPrefix + category + "/" + strings.ToLower(gw.ChainType), nil
	}
	return gatewayFactoryPrefix + category, nil
}

// BuildConnector resolves the named connector's factory and construction
// parameters and builds the instance.
func (r *Registry) BuildConnector(name string, tradingPairs []string, tradingRequired bool, secrets SecretSource) (Connector, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, errors.ErrNotFound
	}

	key, err := r.resolutionKey(d)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	factory, found := r.factories[key]
	r.mu.RUnlock()
	if !found {
		return nil, errors.NewConfigurationError(name, "no implementation registered under %q", key)
	}

	params, err := r.ResolveConstructionParams(name, tradingPairs, tradingRequired, secrets)
	if err != nil {
		return nil, err
	}
	return factory(params)
}
