package registry

// EthereumWalletRequired reports whether any of the connectors in use needs
// an Ethereum wallet.
func (r *Registry) EthereumWalletRequired(requiredConnectors []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range requiredConnectors {
		if d, ok := r.descriptors[name]; ok && d.UseEthereumWallet {
			return true
		}
	}
	return false
}

// EthereumRequiredTradingPairs returns the trading pairs, out of the per-
// connector pairs in use, that require an Ethereum wallet (ERC-20 tokens).
func (r *Registry) EthereumRequiredTradingPairs(pairsByConnector map[string][]string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, pairs := range pairsByConnector {
		if d, ok := r.descriptors[name]; ok && d.UseEthereumWallet {
			out = append(out, pairs...)
		}
	}
	return out
}

// GatewayConnectorTradingPairs returns the trading pairs in use on one
// gateway connector.
func (r *Registry) GatewayConnectorTradingPairs(connector string, pairsByConnector map[string][]string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[connector]
	if !ok || !d.Type.UsesGateway() {
		return nil
	}
	return append([]string(nil), pairsByConnector[connector]...)
}
