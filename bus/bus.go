// bus.go
package bus

import (
	"sync"
)

// Topic is a path of string tokens, e.g. {"device", "stim-a", "param", "current1"}.
// Published topics are always concrete; subscription topics may use "+" to
// match exactly one token at that position.
type Topic []string

// Wildcard matches a single token in a subscription topic.
const Wildcard = "+"

// T is a convenience constructor for topics.
func T(tokens ...string) Topic { return Topic(tokens) }

// Message is a single bus delivery. Retained messages are stored at their
// concrete topic and replayed to new subscribers before any later update,
// which is what gives parameters their always-has-a-value behaviour.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// Subscription is one receiver attached to a (possibly wildcarded) topic.
type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// node is one level of the topic trie. Subscriptions live at the path of
// their pattern (wildcard tokens included); retained messages live at the
// concrete path they were published on.
type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// NewBus creates a bus whose subscriptions buffer up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 16
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Replay every retained message the pattern matches.
	b.root.replayRetained(sub.topic, sub)
}

// replayRetained walks the concrete subtrees matched by pattern and delivers
// any retained messages found at full-pattern depth.
func (n *node) replayRetained(pattern Topic, sub *Subscription) {
	if len(pattern) == 0 {
		if n.retained != nil {
			deliver(sub, n.retained)
		}
		return
	}
	tok, rest := pattern[0], pattern[1:]
	if tok == Wildcard {
		for _, child := range n.children {
			child.replayRetained(rest, sub)
		}
		return
	}
	if child, ok := n.children[tok]; ok {
		child.replayRetained(rest, sub)
	}
}

// Publish delivers msg to every subscription whose pattern matches its topic
// and, if retained, stores it at the concrete path (nil payload clears).
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.root.dispatch(msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// dispatch walks both the concrete child and the wildcard child at each level.
func (n *node) dispatch(topic Topic, msg *Message) {
	if len(topic) == 0 {
		for _, sub := range n.subs {
			deliver(sub, msg)
		}
		return
	}
	tok, rest := topic[0], topic[1:]
	if child, ok := n.children[tok]; ok {
		child.dispatch(rest, msg)
	}
	if child, ok := n.children[Wildcard]; ok {
		child.dispatch(rest, msg)
	}
}

// deliver never blocks the publisher: if a subscriber's queue is full the
// oldest message is dropped to make room. Loss under sustained backpressure
// applies to every stream, including non-retained event streams; a
// subscriber that must not miss messages needs a queue sized for its burst
// rate (NewBus queueLen). Retained topics recover the latest value on the
// next subscribe; dropped events do not come back.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- msg
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, tok := range sub.topic {
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// Connection groups subscriptions so an owner can tear them all down at once.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	name string
}

func (b *Bus) NewConnection(name string) *Connection {
	return &Connection{bus: b, name: name}
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
