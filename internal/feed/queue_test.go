package feed

import "testing"

type countingCounter struct {
	n int
}

func (c *countingCounter) Inc() { c.n++ }

func TestQueueEvictsOldestDepthFirst(t *testing.T) {
	drops := &countingCounter{}
	q := NewQueue(3, drops)

	q.Push(TradeFrame{Symbol: "ES", Price: 1, Volume: 1})
	q.Push(DepthFrame{Symbol: "ES"})
	q.Push(TradeFrame{Symbol: "ES", Price: 2, Volume: 1})
	q.Push(TradeFrame{Symbol: "ES", Price: 3, Volume: 1})

	if drops.n != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.n)
	}
	var prices []float64
	for {
		frame, ok := q.TryPop()
		if !ok {
			break
		}
		trade, ok := frame.(TradeFrame)
		if !ok {
			t.Fatalf("depth frame should have been evicted, got %T", frame)
		}
		prices = append(prices, trade.Price)
	}
	if len(prices) != 3 || prices[0] != 1 || prices[1] != 2 || prices[2] != 3 {
		t.Fatalf("unexpected trade order: %v", prices)
	}
}

func TestQueueEvictsOldestWhenNoDepth(t *testing.T) {
	drops := &countingCounter{}
	q := NewQueue(2, drops)

	q.Push(TradeFrame{Price: 1, Volume: 1})
	q.Push(TradeFrame{Price: 2, Volume: 1})
	q.Push(TradeFrame{Price: 3, Volume: 1})

	if drops.n != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.n)
	}
	frame, _ := q.TryPop()
	if frame.(TradeFrame).Price != 2 {
		t.Fatalf("expected oldest trade dropped, head is %+v", frame)
	}
}

func TestQueuePopAfterClose(t *testing.T) {
	q := NewQueue(4, &countingCounter{})
	q.Push(TradeFrame{Price: 1, Volume: 1})
	q.Close()

	if frame, ok := q.Pop(); !ok || frame.(TradeFrame).Price != 1 {
		t.Fatalf("expected queued frame after close, got %v %v", frame, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected closed empty queue to report done")
	}
	q.Push(TradeFrame{Price: 2, Volume: 1})
	if q.Len() != 0 {
		t.Fatalf("push after close should be ignored")
	}
}
