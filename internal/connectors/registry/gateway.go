package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

// SupportedChains are the chains the gateway bridge can target; market names
// of gateway connectors embed one of them.
var SupportedChains = []string{
	"ethereum", "polygon", "avalanche", "binance-smart-chain",
	"injective", "cosmos", "near", "algorand", "tezos", "xdc",
}

// GatewayConnection is one configured on-chain connection: which generic
// connector, on which chain and network, trading through which wallet.
type GatewayConnection struct {
	Connector          string   `json:"connector" mapstructure:"connector"`
	Chain              string   `json:"chain" mapstructure:"chain"`
	Network            string   `json:"network" mapstructure:"network"`
	TradingType        string   `json:"trading_type" mapstructure:"trading_type"`
	ChainType          string   `json:"chain_type" mapstructure:"chain_type"`
	WalletAddress      string   `json:"wallet_address" mapstructure:"wallet_address"`
	AdditionalSpenders []string `json:"additional_spenders" mapstructure:"additional_spenders"`
	Tokens             []string `json:"tokens,omitempty" mapstructure:"tokens"`
}

// MarketName is the registry entry name for a gateway connection:
// <connector>_<chain>_<network>.
func (c GatewayConnection) MarketName() string {
	return fmt.Sprintf("%s_%s_%s", c.Connector, c.Chain, c.Network)
}

// GatewayConnectionStore persists gateway connections as a JSON document
// ({"connections": [...]}) and answers spec lookups for the registry.
type GatewayConnectionStore struct {
	path string

	mu sync.Mutex
}

// NewGatewayConnectionStore creates a store over the given file path; the
// file may not exist yet.
func NewGatewayConnectionStore(path string) *GatewayConnectionStore {
	return &GatewayConnectionStore{path: path}
}

// Load reads all configured connections. A missing file is an empty list.
func (s *GatewayConnectionStore) Load() ([]GatewayConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *GatewayConnectionStore) load() ([]GatewayConnection, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading gateway connections: %w", err)
	}
	var doc struct {
		Connections []GatewayConnection `mapstructure:"connections"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("parsing gateway connections: %w", err)
	}
	return doc.Connections, nil
}

func (s *GatewayConnectionStore) save(connections []GatewayConnection) error {
	doc := struct {
		Connections []GatewayConnection `json:"connections"`
	}{Connections: connections}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing gateway connections: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing gateway connections: %w", err)
	}
	return nil
}

// GetSpec returns the connection for (connector, chain, network), or
// errors.ErrNotFound.
func (s *GatewayConnectionStore) GetSpec(connector, chain, network string) (GatewayConnection, error) {
	connections, err := s.Load()
	if err != nil {
		return GatewayConnection{}, err
	}
	for _, c := range connections {
		if c.Connector == connector && c.Chain == chain && c.Network == network {
			return c, nil
		}
	}
	return GatewayConnection{}, errors.ErrNotFound
}

// GetSpecFromMarketName splits a <connector>_<chain>_<network> market name
// around its chain component and looks the connection up.
func (s *GatewayConnectionStore) GetSpecFromMarketName(marketName string) (GatewayConnection, error) {
	for _, chain := range SupportedChains {
		marker := "_" + chain + "_"
		if idx := strings.Index(marketName, marker); idx >= 0 {
			connector := marketName[:idx]
			network := marketName[idx+len(marker):]
			return s.GetSpec(connector, chain, network)
		}
	}
	return GatewayConnection{}, errors.ErrNotFound
}

// Upsert inserts or replaces the connection keyed by (connector, chain,
// network). EVM wallet addresses are validated before anything is written.
func (s *GatewayConnectionStore) Upsert(conn GatewayConnection) error {
	if strings.EqualFold(conn.ChainType, "EVM") && !ethcommon.IsHexAddress(conn.WalletAddress) {
		return errors.NewConfigurationError(conn.Connector,
			"invalid EVM wallet address %q", conn.WalletAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	connections, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, c := range connections {
		if c.Connector == conn.Connector && c.Chain == conn.Chain && c.Network == conn.Network {
			connections[i] = conn
			replaced = true
			break
		}
	}
	if !replaced {
		connections = append(connections, conn)
	}
	return s.save(connections)
}

// UpsertTokens updates the token list of the connection named by
// marketName.
func (s *GatewayConnectionStore) UpsertTokens(marketName string, tokens []string) error {
	target, err := s.GetSpecFromMarketName(marketName)
	if err != nil {
		return err
	}
	target.Tokens = tokens
	return s.Upsert(target)
}
