package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betbot/volbot/internal/chain"
	"github.com/betbot/volbot/internal/metrics"
	"github.com/betbot/volbot/internal/oracle"
	"github.com/betbot/volbot/internal/volume"
	"github.com/betbot/volbot/internal/wallet"
	"github.com/betbot/volbot/pkg/cache"
	"github.com/betbot/volbot/pkg/config"
	"github.com/betbot/volbot/pkg/logger"
	"github.com/betbot/volbot/pkg/shutdown"
	"github.com/betbot/volbot/pkg/syncgroup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// 单笔买入绝对下限（原生币）
var minBuyNative = decimal.RequireFromString("0.00005")

var errNoAccounts = errors.New("没有可用账户：请配置 WALLET{n}_PRIVATE_KEY、WALLET_MNEMONIC 或 WALLET_STORE_PATH")

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径（yaml/json，可选）")
		envFile    = flag.String("env", "", ".env 路径，默认当前目录 .env")
		seed       = flag.Int64("seed", 0, "随机种子，0 使用当前时间")
		dexURL     = flag.String("dexscreener", oracle.DefaultDexScreenerURL, "DexScreener API 地址")
	)
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	cfg, err := config.Load(*configPath, config.LoadOptions{EnvFile: *envFile})
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		logrus.Errorf("重新初始化日志失败: %v", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sched, sc, err := build(rootCtx, cfg, *seed, *dexURL)
	if err != nil {
		logrus.Errorf("启动失败: %v", err)
		os.Exit(1)
	}

	if cfg.MetricsListen != "" {
		collector := metrics.NewCollector()
		sched.SetRecorder(collector)
		if _, err := metrics.StartAsync(rootCtx, cfg.MetricsListen, collector); err != nil {
			logrus.Errorf("metrics/pprof 启动失败: %v", err)
		}
	}

	sched.Bootstrap(rootCtx)

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() {
		_ = sched.Run(rootCtx)
	})
	sg.Run()

	mgr := shutdown.NewManager()
	mgr.OnShutdown("scheduler", func(context.Context) {
		// 执行中的交易用 WithoutCancel 跑完，这里等它确认
		sg.Wait()
	})
	mgr.OnShutdown("summary", func(context.Context) {
		for _, a := range sc.Accounts() {
			st, _ := sc.State(a)
			logrus.Infof("账户 %s: buyStreak=%d sellStreak=%d forcedSells=%d", a.Hex(), st.BuyStreak, st.SellStreak, st.SellCountSinceBuy)
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	logrus.Info("已退出")
}

// build 组装账户、链客户端、价格源与调度器。任何一步失败都属于启动期致命错误。
func build(ctx context.Context, cfg *config.Config, seed int64, dexURL string) (*volume.Scheduler, *volume.SchedulerContext, error) {
	accounts, err := wallet.Load(cfg.Wallets)
	if err != nil {
		return nil, nil, err
	}
	if len(accounts) == 0 {
		return nil, nil, errNoAccounts
	}
	logrus.Infof("共加载 %d 个账户", len(accounts))

	token := common.HexToAddress(cfg.Chain.TokenAddress)
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, chain.Options{
		ChainID:   cfg.Chain.ChainID,
		Token:     token,
		Router:    common.HexToAddress(cfg.Chain.RouterAddress),
		RateLimit: cfg.Chain.RateLimit,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.VerifyToken(ctx); err != nil {
		return nil, nil, err
	}
	decimals, symbol := client.TokenMeta(ctx)
	logrus.Infof("代币 %s (%s) decimals=%d", symbol, token.Hex(), decimals)

	gasPrice := decimal.NewFromFloat(cfg.Chain.MinGwei).Shift(9).BigInt()
	addrs := wallet.Addresses(accounts)
	routes := volume.NewRoutes(token, common.HexToAddress(cfg.Chain.WrappedNative), common.HexToAddress(cfg.Chain.RoutingAsset))

	prices := cache.NewPriceCache(oracle.NewDexScreener(dexURL, token).CurrentPrice, cfg.Timing.PriceTTL)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sc := volume.NewSchedulerContext(addrs, volume.Timing{
		HoldLo:         cfg.Timing.HoldMinLo,
		HoldHi:         cfg.Timing.HoldMinHi,
		TimeoutLo:      cfg.Timing.TimeoutLo,
		TimeoutHi:      cfg.Timing.TimeoutHi,
		GapLo:          cfg.Timing.GapLo,
		GapHi:          cfg.Timing.GapHi,
		GlobalCooldown: cfg.Timing.GlobalCooldown,
	}, volume.NewRand(seed), prices, 10*time.Minute)

	params := volume.Params{
		PositionPctMin:  cfg.Trading.PositionPctMin,
		PositionPctMax:  cfg.Trading.PositionPctMax,
		SellPctMin:      cfg.Trading.SellPctMin,
		SellPctMax:      cfg.Trading.SellPctMax,
		MinBuy:          minBuyNative.Shift(18).BigInt(),
		GasPrice:        gasPrice,
		Slippage:        cfg.Trading.SlippageTolerance,
		ZeroMinOut:      cfg.Trading.MinOutPolicy == config.MinOutZero,
		ProfitTarget:    cfg.Trading.ProfitTarget,
		VolumeMode:      cfg.Trading.VolumeMode,
		Mode:            cfg.Trading.ScheduleMode,
		Reinvest:        cfg.Trading.ReinvestProceeds,
		MonitorInterval: cfg.Timing.MonitorInterval,
		Backoff:         volume.DefaultBackoff(cfg.Timing.ErrorBackoff),
		DeadlineWindow:  10 * time.Minute,
		TokenDecimals:   decimals,
		TokenSymbol:     symbol,
	}

	exec := chain.NewExecutor(client, accounts, new(big.Int).Set(gasPrice))
	sched := volume.NewScheduler(sc, chain.NewRegistry(client, addrs), client, exec, routes, params, nil)
	return sched, sc, nil
}
