package dispatch

// Message is work that must run on the dispatcher goroutine.
type Message func()

// Pump is a bounded mailbox of messages posted by other goroutines and run
// by the dispatcher, a few per cycle.
type Pump struct {
	ch chan Message
}

// NewPump creates a pump holding at most capacity pending messages.
func NewPump(capacity int) *Pump {
	if capacity < 1 {
		capacity = 1
	}
	return &Pump{ch: make(chan Message, capacity)}
}

// Post queues m without blocking. It reports false when the mailbox is full.
func (p *Pump) Post(m Message) bool {
	select {
	case p.ch <- m:
		return true
	default:
		return false
	}
}

// Pump runs at most max pending messages and returns how many ran.
func (p *Pump) Pump(max int) int {
	n := 0
	for n < max {
		select {
		case m := <-p.ch:
			m()
			n++
		default:
			return n
		}
	}
	return n
}

// Pending returns the number of queued messages.
func (p *Pump) Pending() int {
	return len(p.ch)
}
