// Package registry catalogs every supported exchange connector and resolves,
// for each one, which implementation to build and with what construction
// parameters. Descriptors are produced by a one-time discovery pass over the
// static registration table and are only mutated through registry methods.
package registry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ConnectorType classifies the venues the client can talk to.
type ConnectorType string

const (
	TypeExchange     ConnectorType = "exchange"
	TypeDerivative   ConnectorType = "derivative"
	TypeConnector    ConnectorType = "connector"
	TypeAMM          ConnectorType = "AMM"
	TypeAMMLP        ConnectorType = "AMM_LP"
	TypeAMMPerpetual ConnectorType = "AMM_Perpetual"
	TypeCLOBSpot     ConnectorType = "CLOB_SPOT"
	TypeCLOBPerp     ConnectorType = "CLOB_PERP"
)

// UsesGateway reports whether this type is served by a generic gateway
// connector rather than a direct exchange client.
func (t ConnectorType) UsesGateway() bool {
	switch t {
	case TypeExchange, TypeDerivative, TypeConnector:
		return false
	}
	return true
}

// UsesCLOB reports whether this type attaches an on-chain order-book API
// data source.
func (t ConnectorType) UsesCLOB() bool {
	return t == TypeCLOBSpot || t == TypeCLOBPerp
}

// IsAMM reports whether this type is one of the AMM gateway categories, for
// which the concrete implementation depends on the chain type.
func (t ConnectorType) IsAMM() bool {
	return strings.Contains(string(t), "AMM")
}

// Variant is the shape of a connector descriptor. Exactly one of the
// concrete types below applies; invalid combinations are unrepresentable.
type Variant interface {
	variant()
}

// Standalone is a regular connector with its own implementation and its own
// secret bundle.
type Standalone struct{}

// SubDomain shares its parent's implementation but targets a different
// regional or domain endpoint. Parent is a name reference, not ownership.
type SubDomain struct {
	Parent          string
	DomainParameter string
}

// PaperTrade simulates trading on top of an existing connector. Parent names
// the connector whose market data and secret bundle are reused.
type PaperTrade struct {
	Parent string
}

// Gateway delegates trading to the external on-chain bridging process.
// ChainType selects among the generic implementations (e.g. "EVM").
type Gateway struct {
	ChainType string
}

func (Standalone) variant() {}
func (SubDomain) variant()  {}
func (PaperTrade) variant() {}
func (Gateway) variant()    {}

// TradeFeeSchema holds normalized percent fees as decimals (0.001 = 0.1%).
type TradeFeeSchema struct {
	MakerPercentFeeDecimal decimal.Decimal
	TakerPercentFeeDecimal decimal.Decimal
}

// normalizeFeeSchema converts a legacy two-element percent pair into the
// decimal schema by dividing by 100; an explicit schema passes through.
func normalizeFeeSchema(legacy []float64, explicit *TradeFeeSchema) TradeFeeSchema {
	if explicit != nil {
		return *explicit
	}
	schema := TradeFeeSchema{
		MakerPercentFeeDecimal: decimal.Zero,
		TakerPercentFeeDecimal: decimal.Zero,
	}
	if len(legacy) >= 2 {
		hundred := decimal.NewFromInt(100)
		schema.MakerPercentFeeDecimal = decimal.NewFromFloat(legacy[0]).Div(hundred)
		schema.TakerPercentFeeDecimal = decimal.NewFromFloat(legacy[1]).Div(hundred)
	}
	return schema
}

// SecretField describes one declared credential attribute of a connector.
type SecretField struct {
	Name      string
	Sensitive bool
}

// ConfigSchema is a connector's declared secret-field schema, in declaration
// order. ReceiveConnectorConfiguration marks schemas that request the raw
// configuration object as an extra construction parameter.
type ConfigSchema struct {
	Fields                        []SecretField
	ReceiveConnectorConfiguration bool
}

func (s *ConfigSchema) clone() *ConfigSchema {
	if s == nil {
		return nil
	}
	out := &ConfigSchema{
		Fields:                        make([]SecretField, len(s.Fields)),
		ReceiveConnectorConfiguration: s.ReceiveConnectorConfiguration,
	}
	copy(out.Fields, s.Fields)
	return out
}

// Descriptor is one immutable registry entry.
type Descriptor struct {
	Name              string
	Type              ConnectorType
	Variant           Variant
	Centralized       bool
	ExamplePair       string
	UseEthereumWallet bool
	UseEthGasLookup   bool
	TradeFeeSchema    TradeFeeSchema
	ConfigKeys        *ConfigSchema
}

// BaseName is the name of the connector implementation actually used: the
// parent for sub-domain and paper-trade entries, the entry's own name
// otherwise.
func (d Descriptor) BaseName() string {
	switch v := d.Variant.(type) {
	case SubDomain:
		return v.Parent
	case PaperTrade:
		return v.Parent
	default:
		return d.Name
	}
}
