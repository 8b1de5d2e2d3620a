package book

// PriceLevel is a FIFO queue of resting orders at one price. Orders
// are linked intrusively; arrival order within a level is queue order.
type PriceLevel struct {
	Price      int64
	TotalQty   int64
	OrderCount int

	head *Order
	tail *Order
}

// Head returns the oldest order at this level, nil if empty.
func (p *PriceLevel) Head() *Order { return p.head }

func (p *PriceLevel) enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Qty
	p.OrderCount++
}

func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	p.TotalQty -= o.Qty
	p.OrderCount--
}
