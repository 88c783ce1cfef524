// Package config loads the frozen configuration struct consumed by every
// component of the liquidation core. Loading itself follows the teacher's
// configs.LoadConfig (YAML via gopkg.in/yaml.v3); env-var loading and the
// settings surface that overlays it remain the out-of-scope collaborator
// named in spec.md §1.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CloseFactorMode resolves the Open Question in spec.md §9: the mapping of
// close_factor_execution_mode to a repayment fraction is explicit config, not
// inferred.
type CloseFactorMode string

const (
	CloseFactorHalf CloseFactorMode = "half" // 50% of outstanding debt
	CloseFactorMax  CloseFactorMode = "max"  // 100% of outstanding debt (protocol-dependent)
)

// TipStrategy resolves the second Open Question: whether alternate tip
// strategies promote mid->fast after a revert is kept as an explicit mode
// rather than inferred from history.
type TipStrategy string

const (
	TipFast TipStrategy = "fast"
	TipMid  TipStrategy = "mid"
	TipSafe TipStrategy = "safe"
)

// PrivateRelayMode mirrors §4.10.
type PrivateRelayMode string

const (
	RelayDisabled PrivateRelayMode = "disabled"
	RelayProtect  PrivateRelayMode = "protect"
	RelayBundle   PrivateRelayMode = "bundle"
)

// FallbackMode mirrors §4.10 "fallbackMode".
type FallbackMode string

const (
	FallbackRace   FallbackMode = "race"
	FallbackDirect FallbackMode = "direct"
)

// Thresholds groups the HF-tier and gating thresholds used across C5/C8/C10.
type Thresholds struct {
	Hot                 float64 `yaml:"hot"`
	Warm                float64 `yaml:"warm"`
	Execution           float64 `yaml:"execution"`
	IndexRecheckBps     int64   `yaml:"indexRecheckBps"`
	PriceShockBps       int64   `yaml:"priceShockBps"`
	HotCacheDriftBps    int64   `yaml:"hotCacheDriftBps"`
	NearBandBps         int64   `yaml:"nearBandBps"`
}

// Capacities groups bounded-set sizes (§8 invariants).
type Capacities struct {
	MaxCandidates    int `yaml:"maxCandidates"`
	MaxHot           int `yaml:"maxHot"`
	MaxWarm          int `yaml:"maxWarm"`
	PreSimCacheSize  int `yaml:"preSimCacheSize"`
	TemplateCacheSize int `yaml:"templateCacheSize"`
	DecisionTraceSize int `yaml:"decisionTraceSize"`
	MaxUsersPerTick  int `yaml:"maxUsersPerTick"`
	EmergencyScanMax int `yaml:"emergencyScanMaxUsers"`
}

// RiskConfig groups ProfitCalculator/RiskGate tunables (§4.8).
type RiskConfig struct {
	MinDebtUsd          float64 `yaml:"minDebtUsd"`
	MinRepayUsd         float64 `yaml:"minRepayUsd"`
	MinProfitAfterGasUsd float64 `yaml:"minProfitAfterGasUsd"`
	MaxSlippagePct      float64 `yaml:"maxSlippagePct"`
	DustWei             string  `yaml:"dustWei"`
	FeeBps              int64   `yaml:"feeBps"`
	MaxGasPriceGwei     float64 `yaml:"maxGasPriceGwei"`
	DailyLossLimitUsd   float64 `yaml:"dailyLossLimitUsd"`
	ExecutionEnabled    bool    `yaml:"executionEnabled"`
	CloseFactorMode     CloseFactorMode `yaml:"closeFactorMode"`
	// GasUnitsEstimate and NativeSymbol size the pre-trade gas-cost-in-USD
	// deduction subtracted from a liquidation's gross profit estimate; the
	// L2s this bot targets settle gas in their wrapped native asset.
	GasUnitsEstimate uint64 `yaml:"gasUnitsEstimate"`
	NativeSymbol     string `yaml:"nativeSymbol"`
}

// ExecutionConfig groups C11-C13 tunables.
type ExecutionConfig struct {
	NonceStrategy     string           `yaml:"nonceStrategy"` // round-robin|deterministic
	PrivateRelayMode  PrivateRelayMode `yaml:"privateRelayMode"`
	FallbackMode      FallbackMode     `yaml:"fallbackMode"`
	PrivateRelayURL   string           `yaml:"privateRelayUrl"`
	PublicRPCURLs     []string         `yaml:"publicRpcUrls"`
	PrivateTimeoutMs  int              `yaml:"privateTimeoutMs"`
	RaceTimeoutMs     int              `yaml:"raceTimeoutMs"`
	TipStrategy       TipStrategy      `yaml:"tipStrategy"`
	GasBumpFirstMs    int              `yaml:"gasBumpFirstMs"`
	GasBumpSecondMs   int              `yaml:"gasBumpSecondMs"`
	GasBumpPct        float64          `yaml:"gasBumpPct"`
	MaxBumps          int              `yaml:"maxBumps"`
}

// IngestConfig groups C7 tunables.
type IngestConfig struct {
	PoolAddress        string   `yaml:"poolAddress"`
	StreamURL          string   `yaml:"streamUrl"`
	HTTPURL            string   `yaml:"httpUrl"`
	BackfillEnabled    bool     `yaml:"backfillEnabled"`
	BackfillBlocks     uint64   `yaml:"backfillBlocks"`
	BackfillChunkSize  uint64   `yaml:"backfillChunkSize"`
	BackfillMaxLogs    int      `yaml:"backfillMaxLogs"`
	BackfillTimeout    time.Duration `yaml:"backfillTimeout"`
	CoalesceWindowMs   int      `yaml:"coalesceWindowMs"`
	CoalesceMaxBatch   int      `yaml:"coalesceMaxBatch"`
	ChunkTimeoutMs     int      `yaml:"chunkTimeoutMs"`
}

// Config is the frozen, validated configuration struct injected into every
// component. It is assembled once at startup and never mutated afterward.
type Config struct {
	RPC            string          `yaml:"rpc"`
	ChainID        int64           `yaml:"chainId"`
	DataDir        string          `yaml:"dataDir"`
	LogLevel       string          `yaml:"logLevel"`
	Thresholds     Thresholds      `yaml:"thresholds"`
	Capacities     Capacities      `yaml:"capacities"`
	Risk           RiskConfig      `yaml:"risk"`
	Execution      ExecutionConfig `yaml:"execution"`
	Ingest         IngestConfig    `yaml:"ingest"`
	FreshnessWindow time.Duration  `yaml:"freshnessWindow"`
	HfCacheTTL      time.Duration  `yaml:"hfCacheTtl"`
	BatchSize       int            `yaml:"batchSize"`
	CostPerHfRead   float64        `yaml:"costPerHfRead"`
	DumpDir         string         `yaml:"dumpDir"`
	S3Bucket        string         `yaml:"s3Bucket"`
}

// Load reads and validates a YAML config file, applying the clamping/default
// rules named in spec.md §6 ("Integers clamp to a [min, max] range").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	c.BatchSize = clampInt(c.BatchSize, 1, 120)
	if c.Capacities.MaxCandidates <= 0 {
		c.Capacities.MaxCandidates = 5000
	}
	if c.Capacities.MaxHot <= 0 {
		c.Capacities.MaxHot = 200
	}
	if c.Capacities.MaxWarm <= 0 {
		c.Capacities.MaxWarm = 1000
	}
	if c.Capacities.PreSimCacheSize <= 0 {
		c.Capacities.PreSimCacheSize = 512
	}
	if c.Capacities.TemplateCacheSize <= 0 {
		c.Capacities.TemplateCacheSize = 64
	}
	if c.Capacities.DecisionTraceSize <= 0 {
		c.Capacities.DecisionTraceSize = 2048
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 30 * time.Second
	}
	if c.HfCacheTTL <= 0 {
		c.HfCacheTTL = 3 * time.Second
	}
	switch c.Risk.CloseFactorMode {
	case CloseFactorHalf, CloseFactorMax:
	default:
		c.Risk.CloseFactorMode = CloseFactorHalf
	}
	switch c.Execution.TipStrategy {
	case TipFast, TipMid, TipSafe:
	default:
		c.Execution.TipStrategy = TipMid
	}
	switch c.Execution.PrivateRelayMode {
	case RelayDisabled, RelayProtect, RelayBundle:
	default:
		c.Execution.PrivateRelayMode = RelayDisabled
	}
	switch c.Execution.FallbackMode {
	case FallbackRace, FallbackDirect:
	default:
		c.Execution.FallbackMode = FallbackRace
	}
	if c.Execution.MaxBumps <= 0 {
		c.Execution.MaxBumps = 2
	}
	if c.Risk.GasUnitsEstimate <= 0 {
		c.Risk.GasUnitsEstimate = 400_000
	}
	if c.Risk.NativeSymbol == "" {
		c.Risk.NativeSymbol = "WETH"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Thresholds.Hot >= c.Thresholds.Warm {
		return fmt.Errorf("thresholds.hot (%v) must be < thresholds.warm (%v)", c.Thresholds.Hot, c.Thresholds.Warm)
	}
	if c.RPC == "" && c.Ingest.HTTPURL == "" {
		return fmt.Errorf("rpc or ingest.httpUrl is required")
	}
	return nil
}

// ParseBool accepts {true,false,1,0,yes,no} case-insensitively, per §6.
func ParseBool(s string, fallback bool) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
