package volume

// Fibonacci 从不小于 start 的第一个斐波那契数开始递增的生成器。
// start=2 → 2, 3, 5, 8…；start=1 → 1, 2, 3, 5…
type Fibonacci struct {
	cur, next int
}

// NewFibonacci 创建生成器
func NewFibonacci(start int) *Fibonacci {
	a, b := 1, 2
	for a < start {
		a, b = b, a+b
	}
	return &Fibonacci{cur: a, next: b}
}

// Next 返回当前值并前进一步
func (f *Fibonacci) Next() int {
	v := f.cur
	f.cur, f.next = f.next, f.cur+f.next
	return v
}

// ActionQueue 共享的买/卖动作队列。
// 为空时由两个独立的斐波那契生成器各前进一步得到本批买、卖数量，洗牌后追加，
// 每批规模约为上一批的 1.6 倍，买卖也不会简单交替。
type ActionQueue struct {
	buys  *Fibonacci
	sells *Fibonacci
	items []Action
	rnd   Rand
}

// NewActionQueue 买生成器从 2 开始，卖生成器从 1 开始
func NewActionQueue(rnd Rand) *ActionQueue {
	return &ActionQueue{
		buys:  NewFibonacci(2),
		sells: NewFibonacci(1),
		rnd:   rnd,
	}
}

// Refill 追加一批洗牌后的动作，返回本批买、卖数量
func (q *ActionQueue) Refill() (buys, sells int) {
	buys, sells = q.buys.Next(), q.sells.Next()
	batch := make([]Action, 0, buys+sells)
	for i := 0; i < buys; i++ {
		batch = append(batch, ActionBuy)
	}
	for i := 0; i < sells; i++ {
		batch = append(batch, ActionSell)
	}
	q.rnd.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	q.items = append(q.items, batch...)
	return buys, sells
}

// Pop 取出队首动作，队列为空时先补充
func (q *ActionQueue) Pop() Action {
	if len(q.items) == 0 {
		q.Refill()
	}
	a := q.items[0]
	q.items = q.items[1:]
	return a
}

// Len 当前待处理动作数
func (q *ActionQueue) Len() int {
	return len(q.items)
}
