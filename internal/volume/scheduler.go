package volume

import (
	"context"
	"math/big"
	"time"

	"github.com/betbot/volbot/pkg/cache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// 顶层调度策略
const (
	ModeRoundRobin = "round_robin"
	ModeQueue      = "queue"
)

// Params 调度参数（由配置层换算而来）
type Params struct {
	PositionPctMin float64
	PositionPctMax float64
	SellPctMin     float64
	SellPctMax     float64

	// MinBuy 单笔买入绝对下限（原生币最小单位）
	MinBuy *big.Int
	// GasPrice 预留 gas 时使用的最低 gas 价格
	GasPrice *big.Int

	Slippage   float64
	ZeroMinOut bool

	ProfitTarget float64
	VolumeMode   bool
	Mode         string
	Reinvest     bool

	MonitorInterval time.Duration
	Backoff         BackoffPolicy
	DeadlineWindow  time.Duration

	TokenDecimals int32
	TokenSymbol   string
}

// Recorder 调度结果上报（指标）
type Recorder interface {
	TradeSucceeded(action, reason string)
	TradeFailed(action, kind string)
	CycleSkipped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) TradeSucceeded(string, string) {}
func (nopRecorder) TradeFailed(string, string)    {}
func (nopRecorder) CycleSkipped(string)           {}

// Outcome 单个周期的结果
type Outcome struct {
	ID       string
	Account  common.Address
	Action   Action
	Reason   ExitReason
	Executed bool
	// Skipped 非空表示本周期没有尝试交易的原因
	Skipped  string
	AmountIn *big.Int
	Realized *big.Int
	TxHash   common.Hash
	Err      error
}

// Scheduler 决策引擎：每个周期选出一个账户与动作，定规模、选路径、调用执行器并更新状态。
type Scheduler struct {
	sc       *SchedulerContext
	registry Registry
	quoter   Quoter
	exec     Executor
	routes   Routes
	params   Params
	rec      Recorder
	log      *logrus.Entry

	rr int
}

// NewScheduler 创建调度器；rec 为 nil 时不上报指标
func NewScheduler(sc *SchedulerContext, registry Registry, quoter Quoter, exec Executor, routes Routes, params Params, rec Recorder) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	if params.Mode == "" {
		params.Mode = ModeRoundRobin
	}
	if params.DeadlineWindow <= 0 {
		params.DeadlineWindow = 10 * time.Minute
	}
	return &Scheduler{
		sc:       sc,
		registry: registry,
		quoter:   quoter,
		exec:     exec,
		routes:   routes,
		params:   params,
		rec:      rec,
		log:      logrus.WithField("component", "volume"),
	}
}

// SetRecorder 替换指标上报，需在 Run 之前调用
func (s *Scheduler) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	s.rec = rec
}

// Context 调度器状态
func (s *Scheduler) Context() *SchedulerContext {
	return s.sc
}

// Bootstrap 启动时打印每个账户的余额；已持有代币的账户提示其初始持有窗口
func (s *Scheduler) Bootstrap(ctx context.Context) {
	for _, a := range s.sc.Accounts() {
		native, err := s.registry.NativeBalance(ctx, a)
		if err != nil {
			s.log.Warnf("读取原生币余额失败: account=%s err=%v", a.Hex(), err)
			continue
		}
		tok, err := s.registry.TokenBalance(ctx, a)
		if err != nil {
			s.log.Warnf("读取代币余额失败: account=%s err=%v", a.Hex(), err)
			continue
		}
		s.log.Infof("余额 %s: %s BNB | %s: %s", a.Hex(), FormatUnits(native, 18), s.params.TokenSymbol, FormatUnits(tok, s.params.TokenDecimals))
		if tok.Sign() > 0 {
			st, _ := s.sc.State(a)
			s.log.Infof("[BOOTSTRAP] %s 已有初始持仓 (%s %s)，最短持有 ~%s，超时 ~%s",
				a.Hex(), FormatUnits(tok, s.params.TokenDecimals), s.params.TokenSymbol, st.MinHold, st.Timeout)
		}
	}
}

// Run 顺序执行周期直到 ctx 取消。两个周期之间等待 max(监控间隔, 错误退避)。
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infof("调度启动: mode=%s accounts=%d volumeMode=%v", s.params.Mode, len(s.sc.Accounts()), s.params.VolumeMode)
	for {
		out := s.Cycle(ctx)
		wait := s.params.MonitorInterval
		if b := s.params.Backoff.For(out.Err); b > wait {
			wait = b
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("调度已停止")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cycle 执行一次决策
func (s *Scheduler) Cycle(ctx context.Context) Outcome {
	id := uuid.NewString()
	log := s.log.WithField("cycle", id[:8])

	price, havePrice := s.currentPrice(ctx)
	if havePrice {
		log.Infof("参考价 ~ %.8f USD", price.USD)
	}

	var out Outcome
	if s.params.Mode == ModeQueue {
		out = s.queueCycle(ctx, log)
	} else {
		out = s.roundRobinCycle(ctx, log, price, havePrice)
	}
	out.ID = id

	switch {
	case out.Err != nil:
		kind := ErrorKind(out.Err)
		s.rec.TradeFailed(out.Action.String(), kind)
		if errors.Is(out.Err, ErrInsufficientFunds) {
			log.Debugf("余额不足，跳过: account=%s action=%s", out.Account.Hex(), out.Action)
		} else {
			log.Warnf("%s 失败: account=%s kind=%s err=%v", out.Action, out.Account.Hex(), kind, out.Err)
		}
	case out.Executed:
		s.rec.TradeSucceeded(out.Action.String(), string(out.Reason))
	case out.Skipped != "":
		s.rec.CycleSkipped(out.Skipped)
		log.Debugf("跳过: account=%s reason=%s", out.Account.Hex(), out.Skipped)
	}
	return out
}

func (s *Scheduler) currentPrice(ctx context.Context) (cache.Price, bool) {
	if s.sc.Prices() == nil {
		return cache.Price{}, false
	}
	return s.sc.Prices().Get(ctx)
}

// roundRobinCycle 每个周期只处理一个账户，保持账户之间的错位
func (s *Scheduler) roundRobinCycle(ctx context.Context, log *logrus.Entry, price cache.Price, havePrice bool) Outcome {
	accounts := s.sc.Accounts()
	if len(accounts) == 0 {
		return Outcome{Skipped: "no_accounts"}
	}
	a := accounts[s.rr%len(accounts)]
	s.rr++

	if !s.sc.CanAct(a) {
		return Outcome{Account: a, Skipped: "cooldown"}
	}
	st, _ := s.sc.State(a)

	if MustBuy(st) {
		return s.tryBuy(ctx, log, a, "bias")
	}

	tokenBal, err := s.registry.TokenBalance(ctx, a)
	if err != nil {
		return Outcome{Account: a, Action: ActionSell, Err: err}
	}
	// 没有入场记录（含启动时已有的代币）或代币已清空的账户走买入
	if tokenBal.Sign() <= 0 || !st.HasEntry() {
		return s.tryBuy(ctx, log, a, "")
	}

	reason := ExitDecision(st, s.sc.Now(), price, havePrice, s.params.ProfitTarget, s.params.VolumeMode)
	if reason == ExitNone {
		if !HoldElapsed(st, s.sc.Now()) {
			return Outcome{Account: a, Skipped: "hold"}
		}
		return Outcome{Account: a, Skipped: "no_exit_signal"}
	}
	frac := uniformFloat(s.sc.rnd, s.params.SellPctMin, s.params.SellPctMax)
	return s.trySell(ctx, log, a, frac, reason, false)
}

// queueCycle 从共享队列取一个动作，在可执行该动作的账户里均匀随机挑一个
func (s *Scheduler) queueCycle(ctx context.Context, log *logrus.Entry) Outcome {
	now := s.sc.Now()

	// 强制买入偏置优先于队列，不消耗队列中的动作。
	// 资金不足的偏置账户不参与任何动作，直到能买为止。
	var biased []common.Address
	for _, a := range s.sc.Accounts() {
		st, ok := s.sc.State(a)
		if !ok || !MustBuy(st) || !s.sc.CanAct(a) {
			continue
		}
		if bal, err := s.registry.NativeBalance(ctx, a); err == nil && s.canFund(bal) {
			biased = append(biased, a)
		}
	}
	if len(biased) > 0 {
		return s.tryBuy(ctx, log, s.pick(biased), "bias")
	}

	if s.sc.Queue().Len() == 0 {
		buys, sells := s.sc.Queue().Refill()
		log.Infof("动作队列补充: buy=%d sell=%d", buys, sells)
	}
	action := s.sc.Queue().Pop()

	if action == ActionBuy {
		var funded []common.Address
		for _, a := range s.sc.Accounts() {
			if !s.sc.CanAct(a) {
				continue
			}
			bal, err := s.registry.NativeBalance(ctx, a)
			if err != nil {
				log.Debugf("读取余额失败: account=%s err=%v", a.Hex(), err)
				continue
			}
			if s.canFund(bal) {
				funded = append(funded, a)
			}
		}
		if len(funded) > 0 {
			return s.tryBuy(ctx, log, s.pick(funded), ExitQueue)
		}
		log.Info("没有可买入的账户，转为强制卖出")
		return s.forcedSell(ctx, log, now)
	}

	var sellers []common.Address
	for _, a := range s.sc.Accounts() {
		st, ok := s.sc.State(a)
		if !ok || MustBuy(st) || !s.sc.CanAct(a) || !HoldElapsed(st, now) {
			continue
		}
		bal, err := s.registry.TokenBalance(ctx, a)
		if err != nil || bal.Sign() <= 0 {
			continue
		}
		sellers = append(sellers, a)
	}
	if len(sellers) == 0 {
		return Outcome{Action: ActionSell, Skipped: "no_seller"}
	}
	frac := uniformFloat(s.sc.rnd, s.params.SellPctMin, s.params.SellPctMax)
	return s.trySell(ctx, log, s.pick(sellers), frac, ExitQueue, false)
}

// forcedSell 第一次卖 40%，第二次 30%，之后不再强制
func (s *Scheduler) forcedSell(ctx context.Context, log *logrus.Entry, now time.Time) Outcome {
	var candidates []common.Address
	for _, a := range s.sc.Accounts() {
		st, ok := s.sc.State(a)
		if !ok || MustBuy(st) || !s.sc.CanAct(a) || !HoldElapsed(st, now) {
			continue
		}
		if _, more := ForcedSellFraction(st.SellCountSinceBuy); !more {
			continue
		}
		bal, err := s.registry.TokenBalance(ctx, a)
		if err != nil || bal.Sign() <= 0 {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return Outcome{Action: ActionSell, Skipped: "no_forced_seller"}
	}
	a := s.pick(candidates)
	st, _ := s.sc.State(a)
	frac, _ := ForcedSellFraction(st.SellCountSinceBuy)
	return s.trySell(ctx, log, a, frac, ExitForced, true)
}

func (s *Scheduler) canFund(balance *big.Int) bool {
	spend := Spendable(balance, GasReserve(s.params.GasPrice, ReserveGasLimit))
	if s.params.MinBuy == nil {
		return spend.Sign() > 0
	}
	return spend.Cmp(s.params.MinBuy) > 0
}

func (s *Scheduler) pick(accounts []common.Address) common.Address {
	return accounts[s.sc.rnd.Intn(len(accounts))]
}

// BuyAmount 计算买入规模：有上一笔卖出所得且开启复投时按复投规则，否则按比例随机
func (s *Scheduler) BuyAmount(balance *big.Int, st AccountState) *big.Int {
	spend := Spendable(balance, GasReserve(s.params.GasPrice, ReserveGasLimit))
	if s.params.Reinvest && st.LastSellProceeds != nil && st.LastSellProceeds.Sign() > 0 {
		return ReinvestSize(spend, st.LastSellProceeds, s.params.MinBuy)
	}
	frac := uniformFloat(s.sc.rnd, s.params.PositionPctMin, s.params.PositionPctMax)
	return BuySize(spend, frac, s.params.MinBuy)
}

func (s *Scheduler) tryBuy(ctx context.Context, log *logrus.Entry, a common.Address, reason ExitReason) Outcome {
	out := Outcome{Account: a, Action: ActionBuy, Reason: reason}
	release, err := s.sc.Begin(a)
	if err != nil {
		out.Skipped = "busy"
		return out
	}
	defer release()

	bal, err := s.registry.NativeBalance(ctx, a)
	if err != nil {
		out.Err = err
		return out
	}
	st, _ := s.sc.State(a)
	amount := s.BuyAmount(bal, st)
	if amount.Sign() <= 0 {
		out.Err = ErrInsufficientFunds
		return out
	}
	out.AmountIn = amount

	route, err := BestQuote(ctx, s.quoter, amount, s.routes.Buy)
	if err != nil {
		out.Err = err
		return out
	}
	res, err := s.execute(ctx, a, ActionBuy, amount, route)
	if err != nil {
		out.Err = err
		return out
	}
	price, havePrice := s.currentPrice(ctx)
	s.sc.CommitBuy(a, price, havePrice)

	out.Executed = true
	out.Realized = res.Realized
	out.TxHash = res.TxHash
	log.Infof("BUY %s: %s BNB -> %s %s | hops=%d reason=%s | Tx: %s",
		a.Hex(), FormatUnits(amount, 18), FormatUnits(res.Realized, s.params.TokenDecimals), s.params.TokenSymbol,
		len(route.Path)-1, reason, res.TxHash.Hex())
	return out
}

func (s *Scheduler) trySell(ctx context.Context, log *logrus.Entry, a common.Address, fraction float64, reason ExitReason, forced bool) Outcome {
	out := Outcome{Account: a, Action: ActionSell, Reason: reason}
	release, err := s.sc.Begin(a)
	if err != nil {
		out.Skipped = "busy"
		return out
	}
	defer release()

	// 最短持有期在占用账户后再确认一次
	if st, _ := s.sc.State(a); !HoldElapsed(st, s.sc.Now()) {
		out.Skipped = "hold"
		return out
	}

	tokenBal, err := s.registry.TokenBalance(ctx, a)
	if err != nil {
		out.Err = err
		return out
	}
	if tokenBal.Sign() <= 0 {
		out.Err = ErrInsufficientFunds
		return out
	}
	amount := SellSize(tokenBal, fraction)
	if amount.Sign() <= 0 {
		out.Skipped = "dust"
		return out
	}
	out.AmountIn = amount

	route, err := BestQuote(ctx, s.quoter, amount, s.routes.Sell)
	if err != nil {
		out.Err = err
		return out
	}
	res, err := s.execute(ctx, a, ActionSell, amount, route)
	if err != nil {
		out.Err = err
		return out
	}
	s.sc.CommitSell(a, res.Realized, forced)

	out.Executed = true
	out.Realized = res.Realized
	out.TxHash = res.TxHash
	remaining := new(big.Int).Sub(tokenBal, amount)
	log.Infof("SELL %s: %s %s -> ~%s BNB | frac=%.3f reason=%s | 剩余 ~%s | Tx: %s",
		a.Hex(), FormatUnits(amount, s.params.TokenDecimals), s.params.TokenSymbol, FormatUnits(res.Realized, 18),
		fraction, reason, FormatUnits(remaining, s.params.TokenDecimals), res.TxHash.Hex())
	return out
}

// execute 提交交易。交易一旦开始提交，进程退出信号不会中断它。
func (s *Scheduler) execute(ctx context.Context, a common.Address, kind Action, amount *big.Int, route Route) (*TradeResult, error) {
	req := TradeRequest{
		Account:  a,
		Kind:     kind,
		AmountIn: amount,
		MinOut:   MinOut(route.Out, s.params.Slippage, s.params.ZeroMinOut),
		Path:     route.Path,
		Deadline: s.sc.Now().Add(s.params.DeadlineWindow),
	}
	res, err := s.exec.Execute(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	if res.Realized == nil {
		res.Realized = new(big.Int)
	}
	return res, nil
}
