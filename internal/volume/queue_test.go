package volume

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFibonacci(t *testing.T) {
	f := NewFibonacci(2)
	assert.Equal(t, []int{2, 3, 5, 8, 13}, []int{f.Next(), f.Next(), f.Next(), f.Next(), f.Next()})

	g := NewFibonacci(1)
	assert.Equal(t, []int{1, 2, 3, 5}, []int{g.Next(), g.Next(), g.Next(), g.Next()})
}

func TestActionQueue_RefillCounts(t *testing.T) {
	q := NewActionQueue(rand.New(rand.NewSource(1)))

	want := [][2]int{{2, 1}, {3, 2}, {5, 3}}
	for i, w := range want {
		before := q.Len()
		buys, sells := q.Refill()
		assert.Equal(t, w, [2]int{buys, sells}, "refill %d", i)
		assert.Equal(t, before+buys+sells, q.Len())
	}
}

func TestActionQueue_PopDrainsBatchThenRefills(t *testing.T) {
	q := NewActionQueue(rand.New(rand.NewSource(3)))

	counts := map[Action]int{}
	for i := 0; i < 3; i++ {
		counts[q.Pop()]++
	}
	// 第一批 2 买 1 卖，洗牌只改变顺序
	assert.Equal(t, 2, counts[ActionBuy])
	assert.Equal(t, 1, counts[ActionSell])
	assert.Equal(t, 0, q.Len())

	q.Pop()
	assert.Equal(t, 4, q.Len(), "second batch holds 3 buys + 2 sells")
}
