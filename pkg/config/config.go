package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 调度模式
const (
	ScheduleRoundRobin = "round_robin" // 每轮只处理一个账户，按顺序轮转
	ScheduleQueue      = "queue"       // 斐波那契动作队列驱动
)

// minOut 策略
const (
	MinOutQuote = "quote" // floor(best_quote × slippage)
	MinOutZero  = "zero"  // 不做滑点保护，只依赖报价选路
)

// ChainConfig 链与合约配置
type ChainConfig struct {
	RPCURL        string
	ChainID       int64
	TokenAddress  string
	RouterAddress string
	WrappedNative string  // WBNB
	RoutingAsset  string  // 中转资产（USDT）
	MinGwei       float64 // gas 价格下限（同时用作下单 gas 价格）
	RateLimit     int     // RPC 每秒请求上限
}

// TradingConfig 交易规模与退出规则
type TradingConfig struct {
	PositionPctMin    float64 // 买入占可用余额比例下限
	PositionPctMax    float64 // 买入占可用余额比例上限
	SellPctMin        float64 // 卖出占代币余额比例下限
	SellPctMax        float64 // 卖出占代币余额比例上限
	SlippageTolerance float64 // minOut = 报价 × 该值
	MinOutPolicy      string  // quote 或 zero
	ProfitTarget      float64 // 止盈倍数，例如 1.15
	VolumeMode        bool    // 成交量模式：关闭止盈退出，只按超时退出
	ScheduleMode      string  // round_robin 或 queue
	ReinvestProceeds  bool    // 下一笔买入按上一笔卖出所得的 105% 计算
}

// TimingConfig 节奏配置
type TimingConfig struct {
	MonitorInterval time.Duration
	HoldMinLo       time.Duration
	HoldMinHi       time.Duration
	TimeoutLo       time.Duration
	TimeoutHi       time.Duration
	GapLo           time.Duration // 单账户两次操作间隔下限
	GapHi           time.Duration
	GlobalCooldown  time.Duration
	ErrorBackoff    time.Duration
	PriceTTL        time.Duration
}

// WalletsConfig 账户来源（私钥列表、助记词派生或加密 KV）
type WalletsConfig struct {
	PrivateKeys    []string
	Mnemonic       string
	Count          int
	DerivationBase string
	StorePath      string
	StoreKey       string
}

// Config 应用配置
type Config struct {
	Chain         ChainConfig
	Trading       TradingConfig
	Timing        TimingConfig
	Wallets       WalletsConfig
	LogLevel      string
	LogFormat     string
	LogFile       string
	MetricsListen string
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析），未设置的字段回退到环境变量
type ConfigFile struct {
	Chain struct {
		RPCURL        string  `yaml:"rpc_url" json:"rpc_url"`
		ChainID       int64   `yaml:"chain_id" json:"chain_id"`
		TokenAddress  string  `yaml:"token_address" json:"token_address"`
		RouterAddress string  `yaml:"router_address" json:"router_address"`
		WrappedNative string  `yaml:"wrapped_native" json:"wrapped_native"`
		RoutingAsset  string  `yaml:"routing_asset" json:"routing_asset"`
		MinGwei       float64 `yaml:"min_gwei" json:"min_gwei"`
		RateLimit     int     `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"chain" json:"chain"`
	Trading struct {
		PositionPctMin    float64 `yaml:"position_pct_min" json:"position_pct_min"`
		PositionPctMax    float64 `yaml:"position_pct_max" json:"position_pct_max"`
		SellPctMin        float64 `yaml:"sell_pct_min" json:"sell_pct_min"`
		SellPctMax        float64 `yaml:"sell_pct_max" json:"sell_pct_max"`
		SlippageTolerance float64 `yaml:"slippage_tolerance" json:"slippage_tolerance"`
		MinOutPolicy      string  `yaml:"min_out_policy" json:"min_out_policy"`
		ProfitTarget      float64 `yaml:"profit_target" json:"profit_target"`
		VolumeMode        *bool   `yaml:"volume_mode" json:"volume_mode"`
		ScheduleMode      string  `yaml:"schedule_mode" json:"schedule_mode"`
		ReinvestProceeds  *bool   `yaml:"reinvest_proceeds" json:"reinvest_proceeds"`
	} `yaml:"trading" json:"trading"`
	Timing struct {
		MonitorInterval int `yaml:"monitor_interval" json:"monitor_interval"` // 秒
		HoldMinLo       int `yaml:"hold_min_lo" json:"hold_min_lo"`
		HoldMinHi       int `yaml:"hold_min_hi" json:"hold_min_hi"`
		TimeoutLo       int `yaml:"timeout_lo" json:"timeout_lo"`
		TimeoutHi       int `yaml:"timeout_hi" json:"timeout_hi"`
		GapLo           int `yaml:"inter_wallet_gap_lo" json:"inter_wallet_gap_lo"`
		GapHi           int `yaml:"inter_wallet_gap_hi" json:"inter_wallet_gap_hi"`
		GlobalCooldown  int `yaml:"global_cooldown" json:"global_cooldown"`
		ErrorBackoff    int `yaml:"error_backoff" json:"error_backoff"`
		PriceTTL        int `yaml:"price_ttl" json:"price_ttl"`
	} `yaml:"timing" json:"timing"`
	Wallets struct {
		Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
		Count          int    `yaml:"count" json:"count"`
		DerivationBase string `yaml:"derivation_base" json:"derivation_base"`
		StorePath      string `yaml:"store_path" json:"store_path"`
	} `yaml:"wallets" json:"wallets"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFormat     string `yaml:"log_format" json:"log_format"`
	LogFile       string `yaml:"log_file" json:"log_file"`
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
}

// LoadOptions 加载选项
type LoadOptions struct {
	EnvFile    string // .env 路径，空则尝试当前目录的 .env
	MaxWallets int    // 扫描 WALLET{n}_PRIVATE_KEY 的上限，默认 10
}

// Load 加载配置：.env → 配置文件 → 环境变量 → 默认值
func Load(filePath string, opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("加载 %s 失败: %w", envFile, err)
		}
	}

	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = loaded
	}

	maxWallets := opts.MaxWallets
	if maxWallets <= 0 {
		maxWallets = parseIntEnv("MAX_WALLETS", 10)
	}

	scheduleMode := pickString(cf.Trading.ScheduleMode, getEnv("SCHEDULE_MODE", ScheduleRoundRobin))
	sellLo, sellHi := 0.75, 0.95
	if scheduleMode == ScheduleQueue {
		sellLo, sellHi = 0.30, 0.40
	}

	cfg := &Config{
		Chain: ChainConfig{
			RPCURL:        pickString(cf.Chain.RPCURL, getEnv("BSC_RPC_URL", "https://bsc-dataseed.binance.org/")),
			ChainID:       pickInt64(cf.Chain.ChainID, int64(parseIntEnv("CHAIN_ID", 56))),
			TokenAddress:  pickString(cf.Chain.TokenAddress, getEnv("TOKEN_ADDRESS", "")),
			RouterAddress: pickString(cf.Chain.RouterAddress, getEnv("PANCAKE_ROUTER_V2", "0x10ED43C718714eb63d5aA57B78B54704E256024E")),
			WrappedNative: pickString(cf.Chain.WrappedNative, getEnv("WBNB_ADDRESS", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")),
			RoutingAsset:  pickString(cf.Chain.RoutingAsset, getEnv("USDT_ADDRESS", "0x55d398326f99059fF775485246999027B3197955")),
			MinGwei:       pickFloat(cf.Chain.MinGwei, parseFloatEnv("MIN_GWEI", 1.2)),
			RateLimit:     pickInt(cf.Chain.RateLimit, parseIntEnv("RPC_RATE_LIMIT", 20)),
		},
		Trading: TradingConfig{
			PositionPctMin:    pickFloat(cf.Trading.PositionPctMin, parseFloatEnv("POSITION_PCT_MIN", 0.02)),
			PositionPctMax:    pickFloat(cf.Trading.PositionPctMax, parseFloatEnv("POSITION_PCT_MAX", 0.03)),
			SellPctMin:        pickFloat(cf.Trading.SellPctMin, parseFloatEnv("SELL_PCT_MIN", sellLo)),
			SellPctMax:        pickFloat(cf.Trading.SellPctMax, parseFloatEnv("SELL_PCT_MAX", sellHi)),
			SlippageTolerance: pickFloat(cf.Trading.SlippageTolerance, parseFloatEnv("SLIPPAGE_TOLERANCE", 0.70)),
			MinOutPolicy:      pickString(cf.Trading.MinOutPolicy, getEnv("MIN_OUT_POLICY", MinOutQuote)),
			ProfitTarget:      pickFloat(cf.Trading.ProfitTarget, parseFloatEnv("PROFIT_TARGET", 1.15)),
			VolumeMode:        pickBool(cf.Trading.VolumeMode, parseBoolEnv("VOLUME_MODE", false)),
			ScheduleMode:      scheduleMode,
			ReinvestProceeds:  pickBool(cf.Trading.ReinvestProceeds, parseBoolEnv("REINVEST_PROCEEDS", true)),
		},
		Timing: TimingConfig{
			MonitorInterval: seconds(cf.Timing.MonitorInterval, "MONITOR_INTERVAL", 2),
			HoldMinLo:       seconds(cf.Timing.HoldMinLo, "HOLD_MIN_LO", 60),
			HoldMinHi:       seconds(cf.Timing.HoldMinHi, "HOLD_MIN_HI", 120),
			TimeoutLo:       seconds(cf.Timing.TimeoutLo, "TIMEOUT_LO", 70),
			TimeoutHi:       seconds(cf.Timing.TimeoutHi, "TIMEOUT_HI", 120),
			GapLo:           seconds(cf.Timing.GapLo, "INTER_WALLET_GAP_LO", 60),
			GapHi:           seconds(cf.Timing.GapHi, "INTER_WALLET_GAP_HI", 120),
			GlobalCooldown:  seconds(cf.Timing.GlobalCooldown, "GLOBAL_COOLDOWN", 15),
			ErrorBackoff:    seconds(cf.Timing.ErrorBackoff, "ERROR_BACKOFF", 5),
			PriceTTL:        seconds(cf.Timing.PriceTTL, "PRICE_TTL", 8),
		},
		Wallets: WalletsConfig{
			PrivateKeys:    collectPrivateKeys(maxWallets),
			Mnemonic:       pickString(cf.Wallets.Mnemonic, getEnv("WALLET_MNEMONIC", "")),
			Count:          pickInt(cf.Wallets.Count, parseIntEnv("WALLET_COUNT", 0)),
			DerivationBase: pickString(cf.Wallets.DerivationBase, getEnv("WALLET_DERIVATION_BASE", "m/44'/60'/0'/0")),
			StorePath:      pickString(cf.Wallets.StorePath, getEnv("WALLET_STORE_PATH", "")),
			StoreKey:       getEnv("WALLET_STORE_KEY", ""),
		},
		LogLevel:      pickString(cf.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFormat:     pickString(cf.LogFormat, getEnv("LOG_FORMAT", "text")),
		LogFile:       pickString(cf.LogFile, getEnv("LOG_FILE", "logs/volbot.log")),
		MetricsListen: pickString(cf.MetricsListen, getEnv("METRICS_LISTEN", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", filePath)
	}
	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Chain.TokenAddress) {
		return fmt.Errorf("TOKEN_ADDRESS 无效: %q", c.Chain.TokenAddress)
	}
	for name, addr := range map[string]string{
		"PANCAKE_ROUTER_V2": c.Chain.RouterAddress,
		"WBNB_ADDRESS":      c.Chain.WrappedNative,
		"USDT_ADDRESS":      c.Chain.RoutingAsset,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s 无效: %q", name, addr)
		}
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("BSC_RPC_URL 未配置")
	}
	if c.Chain.MinGwei <= 0 {
		return fmt.Errorf("MIN_GWEI 必须大于 0")
	}

	t := c.Trading
	if err := checkFractionRange("POSITION_PCT", t.PositionPctMin, t.PositionPctMax); err != nil {
		return err
	}
	if err := checkFractionRange("SELL_PCT", t.SellPctMin, t.SellPctMax); err != nil {
		return err
	}
	if t.SellPctMax >= 1 {
		return fmt.Errorf("SELL_PCT_MAX 必须小于 1（每次卖出都要留下余量）")
	}
	if t.SlippageTolerance <= 0 || t.SlippageTolerance > 1 {
		return fmt.Errorf("SLIPPAGE_TOLERANCE 必须在 (0, 1] 之间")
	}
	if t.MinOutPolicy != MinOutQuote && t.MinOutPolicy != MinOutZero {
		return fmt.Errorf("未知的 MIN_OUT_POLICY: %s", t.MinOutPolicy)
	}
	if t.ScheduleMode != ScheduleRoundRobin && t.ScheduleMode != ScheduleQueue {
		return fmt.Errorf("未知的 SCHEDULE_MODE: %s", t.ScheduleMode)
	}
	if t.ProfitTarget <= 1 {
		return fmt.Errorf("PROFIT_TARGET 必须大于 1")
	}

	tm := c.Timing
	for name, r := range map[string][2]time.Duration{
		"HOLD_MIN":         {tm.HoldMinLo, tm.HoldMinHi},
		"TIMEOUT":          {tm.TimeoutLo, tm.TimeoutHi},
		"INTER_WALLET_GAP": {tm.GapLo, tm.GapHi},
	} {
		if r[0] < 0 || r[1] < r[0] {
			return fmt.Errorf("%s_LO/%s_HI 区间无效: [%v, %v]", name, name, r[0], r[1])
		}
	}
	if tm.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL 必须大于 0")
	}
	if tm.PriceTTL <= 0 {
		return fmt.Errorf("PRICE_TTL 必须大于 0")
	}
	return nil
}

func checkFractionRange(name string, lo, hi float64) error {
	if lo <= 0 || hi > 1 || hi < lo {
		return fmt.Errorf("%s_MIN/%s_MAX 区间无效: [%v, %v]", name, name, lo, hi)
	}
	return nil
}

// collectPrivateKeys 按 WALLET1_PRIVATE_KEY..WALLET{n}_PRIVATE_KEY 顺序收集私钥
func collectPrivateKeys(max int) []string {
	var keys []string
	for i := 1; i <= max; i++ {
		if pk := strings.TrimSpace(os.Getenv(fmt.Sprintf("WALLET%d_PRIVATE_KEY", i))); pk != "" {
			keys = append(keys, pk)
		}
	}
	return keys
}

func seconds(fileValue int, envKey string, defaultSeconds int) time.Duration {
	if fileValue > 0 {
		return time.Duration(fileValue) * time.Second
	}
	return time.Duration(parseIntEnv(envKey, defaultSeconds)) * time.Second
}

// pickString 配置文件中的非空值优先
func pickString(fileValue, envValue string) string {
	if strings.TrimSpace(fileValue) != "" {
		return fileValue
	}
	return envValue
}

func pickFloat(fileValue, envValue float64) float64 {
	if fileValue != 0 {
		return fileValue
	}
	return envValue
}

func pickInt(fileValue, envValue int) int {
	if fileValue != 0 {
		return fileValue
	}
	return envValue
}

func pickInt64(fileValue, envValue int64) int64 {
	if fileValue != 0 {
		return fileValue
	}
	return envValue
}

func pickBool(fileValue *bool, envValue bool) bool {
	if fileValue != nil {
		return *fileValue
	}
	return envValue
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
