// Package catalog is the static registration table of supported connectors.
// Each connector contributes one Spec describing its type, fee schema,
// declared secret fields and additional domains; discovery in the registry
// package turns these into descriptors. Implementations are bound separately
// through Registry.RegisterFactory.
package catalog

import "github.com/kolibri-trade/kolibri/internal/connectors/registry"

// Specs returns the full registration table.
func Specs() []registry.Spec {
	return []registry.Spec{
		binanceSpec(),
		binancePerpetualSpec(),
		kucoinSpec(),
		gateIOSpec(),
		ascendExSpec(),
	}
}
