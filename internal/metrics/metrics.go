package metrics

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// expvar 计数器，/debug/vars 可见
var (
	CyclesRun     = expvar.NewInt("volume_cycles")
	TradesOK      = expvar.NewInt("volume_trades_ok")
	TradesFailed  = expvar.NewInt("volume_trades_failed")
	CyclesSkipped = expvar.NewInt("volume_cycles_skipped")
)

// Collector 交易计数，实现 volume.Recorder
type Collector struct {
	registry *prometheus.Registry

	trades  *prometheus.CounterVec
	failed  *prometheus.CounterVec
	skipped *prometheus.CounterVec
}

// NewCollector 使用独立 registry，避免与全局 DefaultRegisterer 冲突
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volbot_trades_total",
			Help: "成功确认的交易数",
		}, []string{"action", "reason"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volbot_trade_failures_total",
			Help: "失败的交易数（按错误类型）",
		}, []string{"action", "kind"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volbot_cycles_skipped_total",
			Help: "未执行交易的周期数",
		}, []string{"reason"}),
	}
	c.registry.MustRegister(c.trades, c.failed, c.skipped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// Registry 供 /metrics 导出
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) TradeSucceeded(action, reason string) {
	CyclesRun.Add(1)
	TradesOK.Add(1)
	c.trades.WithLabelValues(action, reason).Inc()
}

func (c *Collector) TradeFailed(action, kind string) {
	CyclesRun.Add(1)
	TradesFailed.Add(1)
	c.failed.WithLabelValues(action, kind).Inc()
}

func (c *Collector) CycleSkipped(reason string) {
	CyclesRun.Add(1)
	CyclesSkipped.Add(1)
	c.skipped.WithLabelValues(reason).Inc()
}
