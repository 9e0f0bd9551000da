package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// Connector is the construction contract every connector implementation
// factory satisfies. The network behavior behind it is out of scope here;
// the registry only decides which factory runs and with what parameters.
type Connector interface {
	Name() string
}

// BuildFunc constructs a connector implementation from resolved parameters.
type BuildFunc func(params Params) (Connector, error)

// APIDataSource is the order-book data source attached to gateway CLOB
// connectors, scoped to one chain/network pair.
type APIDataSource interface {
	Chain() string
	Network() string
}

// APIDataSourceFactory builds the data source for one CLOB connector family.
type APIDataSourceFactory func(conn GatewayConnection, tradingPairs []string, tradingRequired bool) (APIDataSource, error)

// DomainSpec declares one additional domain of a connector (its OTHER_DOMAINS
// entry): an independent registry entry reusing the parent implementation.
type DomainSpec struct {
	Name            string
	DomainParameter string
	ExamplePair     string
	DefaultFees     []float64
	Keys            *ConfigSchema
}

// Spec is one connector's registration-table entry, the compile-time
// replacement for discovering metadata modules at runtime.
type Spec struct {
	Name              string
	Type              ConnectorType
	Centralized       bool
	ExamplePair       string
	UseEthereumWallet bool
	UseEthGasLookup   bool
	// DefaultFees is the legacy [maker, taker] percent pair; FeeSchema, when
	// set, wins.
	DefaultFees  []float64
	FeeSchema    *TradeFeeSchema
	Keys         *ConfigSchema
	OtherDomains []DomainSpec
	Factory      BuildFunc
}

// Registry is the process-lifetime connector catalog. Populate it once with
// Discover; later mutations go through its methods only.
type Registry struct {
	logger  *zap.Logger
	gateway *GatewayConnectionStore

	mu          sync.RWMutex
	descriptors map[string]Descriptor
	defaultKeys map[string]*ConfigSchema
	factories   map[string]BuildFunc
	dataSources map[string]APIDataSourceFactory
}

// New creates an empty registry backed by the given gateway connection
// store.
func New(logger *zap.Logger, gateway *GatewayConnectionStore) *Registry {
	return &Registry{
		logger:      logger,
		gateway:     gateway,
		descriptors: map[string]Descriptor{},
		defaultKeys: map[string]*ConfigSchema{},
		factories:   map[string]BuildFunc{},
		dataSources: map[string]APIDataSourceFactory{},
	}
}

// RegisterFactory binds a connector implementation to its registry entry.
// Implementations live outside this package; the composition root binds each
// one here after discovery.
func (r *Registry) RegisterFactory(name string, fn BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// RegisterGatewayFactory installs a generic gateway implementation under a
// resolution key ("amm/evm", "clob_spot", ...). Must be called before
// connectors are built, normally at composition time.
func (r *Registry) RegisterGatewayFactory(key string, fn BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gatewayFactoryPrefix+key] = fn
}

// RegisterAPIDataSourceFactory installs the CLOB data-source factory for one
// connector family (keyed by the connector's base name).
func (r *Registry) RegisterAPIDataSourceFactory(baseName string, fn APIDataSourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataSources[baseName] = fn
}

// Discover rebuilds the descriptor map from the registration table plus the
// configured gateway connections. Two specs with the same name are a fatal
// configuration error.
func (r *Registry) Discover(specs []Spec) error {
	descriptors := map[string]Descriptor{}
	defaultKeys := map[string]*ConfigSchema{}
	factories := map[string]BuildFunc{}

	ordered := make([]Spec, len(specs))
	copy(ordered, specs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, spec := range ordered {
		if _, exists := descriptors[spec.Name]; exists {
			return errors.NewConfigurationError(spec.Name, "multiple connectors with the same name")
		}
		descriptors[spec.Name] = Descriptor{
			Name:              spec.Name,
			Type:              spec.Type,
			Variant:           Standalone{},
			Centralized:       spec.Centralized,
			ExamplePair:       spec.ExamplePair,
			UseEthereumWallet: spec.UseEthereumWallet,
			UseEthGasLookup:   spec.UseEthGasLookup,
			TradeFeeSchema:    normalizeFeeSchema(spec.DefaultFees, spec.FeeSchema),
			ConfigKeys:        spec.Keys.clone(),
		}
		defaultKeys[spec.Name] = spec.Keys.clone()
		if spec.Factory != nil {
			factories[spec.Name] = spec.Factory
		}

		for _, domain := range spec.OtherDomains {
			if _, exists := descriptors[domain.Name]; exists {
				return errors.NewConfigurationError(domain.Name, "multiple connectors with the same name")
			}
			parent := descriptors[spec.Name]
			fees := parent.TradeFeeSchema
			if domain.DefaultFees != nil {
				fees = normalizeFeeSchema(domain.DefaultFees, nil)
			}
			descriptors[domain.Name] = Descriptor{
				Name:              domain.Name,
				Type:              parent.Type,
				Variant:           SubDomain{Parent: parent.Name, DomainParameter: domain.DomainParameter},
				Centralized:       parent.Centralized,
				ExamplePair:       domain.ExamplePair,
				UseEthereumWallet: parent.UseEthereumWallet,
				UseEthGasLookup:   parent.UseEthGasLookup,
				TradeFeeSchema:    fees,
				ConfigKeys:        domain.Keys.clone(),
			}
			defaultKeys[domain.Name] = domain.Keys.clone()
		}
	}

	// Append an entry per configured gateway connection.
	if r.gateway != nil {
		connections, err := r.gateway.Load()
		if err != nil {
			return err
		}
		for _, conn := range connections {
			name := conn.MarketName()
			if _, exists := descriptors[name]; exists {
				return errors.NewConfigurationError(name, "multiple connectors with the same name")
			}
			connectorType, err := gatewayConnectorType(conn.TradingType)
			if err != nil {
				return err
			}
			descriptors[name] = Descriptor{
				Name:           name,
				Type:           connectorType,
				Variant:        Gateway{ChainType: conn.ChainType},
				Centralized:    false,
				ExamplePair:    "WETH-USDC",
				TradeFeeSchema: normalizeFeeSchema([]float64{0, 0}, nil),
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = descriptors
	r.defaultKeys = defaultKeys
	for name, fn := range factories {
		r.factories[name] = fn
	}
	r.logger.Info("connector discovery finished", zap.Int("connectors", len(descriptors)))
	return nil
}

func gatewayConnectorType(tradingType string) (ConnectorType, error) {
	switch ConnectorType(tradingType) {
	case TypeAMM, TypeAMMLP, TypeAMMPerpetual, TypeCLOBSpot, TypeCLOBPerp:
		return ConnectorType(tradingType), nil
	default:
		return "", errors.NewConfigurationError("", "unknown gateway trading type %q", tradingType)
	}
}

// InitializePaperTradeSettings appends a <name>_paper_trade descriptor for
// each named connector, copying the base entry with the base as parent.
// Unknown names are skipped.
func (r *Registry) InitializePaperTradeSettings(paperTradeExchanges []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range paperTradeExchanges {
		base, ok := r.descriptors[name]
		if !ok {
			continue
		}
		paperName := name + "_paper_trade"
		r.descriptors[paperName] = Descriptor{
			Name:              paperName,
			Type:              base.Type,
			Variant:           PaperTrade{Parent: base.Name},
			Centralized:       base.Centralized,
			ExamplePair:       base.ExamplePair,
			UseEthereumWallet: base.UseEthereumWallet,
			UseEthGasLookup:   base.UseEthGasLookup,
			TradeFeeSchema:    base.TradeFeeSchema,
			ConfigKeys:        base.ConfigKeys.clone(),
		}
		r.defaultKeys[paperName] = r.defaultKeys[name].clone()
	}
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, false
	}
	d.ConfigKeys = d.ConfigKeys.clone()
	return d, true
}

// All returns a copy of the full descriptor map.
func (r *Registry) All() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Descriptor, len(r.descriptors))
	for name, d := range r.descriptors {
		d.ConfigKeys = d.ConfigKeys.clone()
		out[name] = d
	}
	return out
}

// UpdateConfigKeys patches the named connector's secret-field schema, e.g.
// after the user edits a saved configuration.
func (r *Registry) UpdateConfigKeys(name string, keys *ConfigSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[name]
	if !ok {
		return errors.ErrNotFound
	}
	d.ConfigKeys = keys.clone()
	r.descriptors[name] = d
	return nil
}

// ResetConfigKeys restores the named connector's secret-field schema to the
// one its registration declared, e.g. after the stored credentials are
// removed.
func (r *Registry) ResetConfigKeys(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[name]
	if !ok {
		return errors.ErrNotFound
	}
	d.ConfigKeys = r.defaultKeys[name].clone()
	r.descriptors[name] = d
	return nil
}

// ExchangeNames returns the names of all spot-trading venues.
func (r *Registry) ExchangeNames() []string {
	return r.namesWhere(func(d Descriptor) bool {
		return d.Type == TypeExchange || d.Type == TypeCLOBSpot || d.Type == TypeCLOBPerp
	})
}

// DerivativeNames returns the names of all derivative venues.
func (r *Registry) DerivativeNames() []string {
	return r.namesWhere(func(d Descriptor) bool {
		return d.Type == TypeDerivative || d.Type == TypeAMMPerpetual || d.Type == TypeCLOBPerp
	})
}

// EthWalletConnectorNames returns connectors that need an Ethereum wallet.
func (r *Registry) EthWalletConnectorNames() []string {
	return r.namesWhere(func(d Descriptor) bool { return d.UseEthereumWallet })
}

// GatewayAMMNames returns all gateway AMM connectors.
func (r *Registry) GatewayAMMNames() []string {
	return r.namesWhere(func(d Descriptor) bool { return d.Type == TypeAMM })
}

// GatewayCLOBNames returns all gateway CLOB spot connectors.
func (r *Registry) GatewayCLOBNames() []string {
	return r.namesWhere(func(d Descriptor) bool { return d.Type == TypeCLOBSpot })
}

// ExamplePairs maps every connector to its example trading pair.
func (r *Registry) ExamplePairs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.descriptors))
	for name, d := range r.descriptors {
		out[name] = d.ExamplePair
	}
	return out
}

func (r *Registry) namesWhere(pred func(Descriptor) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, d := range r.descriptors {
		if pred(d) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
