// The message substrate for inter-object coordination. Resource requests,
// assignments, releases and downtime notifications all travel as Messages
// between Agents; brokering behavior is built from per-type handlers,
// per-type queue priority functions, and a response intercept slot.

package sim

import (
	"fmt"
	"sort"
)

// MsgType identifies the purpose of a Message and selects its handler.
type MsgType string

// Kernel message types.
const (
	MsgResourceRequest    MsgType = "ResourceRequest"
	MsgResourceAssignment MsgType = "ResourceAssignment"
	MsgResourceRelease    MsgType = "ResourceRelease"
	MsgResourceDown       MsgType = "ResourceDown"
	MsgResourceGoingDown  MsgType = "ResourceGoingDown"
	MsgResourceUp         MsgType = "ResourceUp"
)

// Message is one unit of inter-agent communication. Responses link back
// to the message they answer through Originating.
type Message struct {
	ID          uint64
	Type        MsgType
	SendTime    SimTime
	Sender      *Agent
	Receiver    *Agent
	Originating *Message
	Data        any
}

// Handler processes a received message and reports whether it was fully
// handled; unhandled messages are queued on the receiving agent.
type Handler func(*Message) bool

// PriorityFunc derives a queue priority from a message; lower values are
// served first, ties go to the oldest message.
type PriorityFunc func(*Message) int

// Agent is the embeddable messaging endpoint. The zero value is not
// usable; embedders call initAgent.
type Agent struct {
	simulation  *Simulation
	queue       []*Message
	handlers    map[MsgType]Handler
	priorities  map[MsgType]PriorityFunc
	intercept   func(*Message) bool
	subscribers map[MsgType][]*Agent
}

func (a *Agent) initAgent(sim *Simulation) {
	a.simulation = sim
	a.handlers = make(map[MsgType]Handler)
	a.priorities = make(map[MsgType]PriorityFunc)
	a.subscribers = make(map[MsgType][]*Agent)
}

// RegisterHandler sets the handler for a message type, replacing any
// previous registration.
func (a *Agent) RegisterHandler(t MsgType, h Handler) {
	a.handlers[t] = h
}

// RegisterPriority sets the queue priority function for a message type.
// Queued messages of that type are then served lowest value first instead
// of strictly oldest first.
func (a *Agent) RegisterPriority(t MsgType, f PriorityFunc) {
	a.priorities[t] = f
}

// SendMessage delivers a new message of the given type to another agent
// and returns it along with any responses the receiver sent back during
// delivery.
func (a *Agent) SendMessage(to *Agent, t MsgType, data any) (*Message, []*Message) {
	msg := &Message{
		ID:       a.simulation.nextMessageID(),
		Type:     t,
		SendTime: a.simulation.Now(),
		Sender:   a,
		Receiver: to,
		Data:     data,
	}

	// Collect synchronous responses to this message while leaving any
	// other traffic to the normal dispatch path.
	var responses []*Message
	prev := a.intercept
	a.intercept = func(m *Message) bool {
		if m.Originating == msg {
			responses = append(responses, m)
			return true
		}
		if prev != nil {
			return prev(m)
		}
		return false
	}
	to.receiveMessage(msg)
	a.intercept = prev
	return msg, responses
}

// SendResponse answers a previously received message. The original must
// have been addressed to this agent.
func (a *Agent) SendResponse(original *Message, t MsgType, data any) {
	if original.Receiver != a {
		panic(fmt.Sprintf("agent responding to message %d it was not the receiver of", original.ID))
	}
	msg := &Message{
		ID:          a.simulation.nextMessageID(),
		Type:        t,
		SendTime:    a.simulation.Now(),
		Sender:      a,
		Receiver:    original.Sender,
		Originating: original,
		Data:        data,
	}
	original.Sender.receiveMessage(msg)
}

// receiveMessage runs the message through the intercept slot, then the
// type handler; messages the handler does not fully handle are queued.
// Subscribers observe every message the agent receives, whether or not
// it was intercepted, handled, or queued.
func (a *Agent) receiveMessage(msg *Message) {
	a.notifySubscribers(msg)
	if a.intercept != nil && a.intercept(msg) {
		return
	}
	if a.dispatch(msg) {
		return
	}
	a.queue = append(a.queue, msg)
}

// dispatch invokes the registered handler. A message type with no handler
// is a wiring bug.
func (a *Agent) dispatch(msg *Message) bool {
	h, ok := a.handlers[msg.Type]
	if !ok {
		panic(fmt.Sprintf("agent has no handler for message type %q", msg.Type))
	}
	return h(msg)
}

// setIntercept installs fn ahead of normal dispatch; fn returns true to
// consume a message. Used for awaiting responses.
func (a *Agent) setIntercept(fn func(*Message) bool) {
	if a.intercept != nil {
		panic("agent already has a message intercept installed")
	}
	a.intercept = fn
}

func (a *Agent) clearIntercept() { a.intercept = nil }

// queuedMessages returns the queued messages of the given type, oldest
// first, or priority-ordered (stable) when a priority function is
// registered for the type.
func (a *Agent) queuedMessages(t MsgType) []*Message {
	var out []*Message
	for _, m := range a.queue {
		if m.Type == t {
			out = append(out, m)
		}
	}
	if f, ok := a.priorities[t]; ok {
		sort.SliceStable(out, func(i, j int) bool { return f(out[i]) < f(out[j]) })
	}
	return out
}

// NextQueuedMessage returns the first queued message of the type under
// the same ordering as queuedMessages, or nil.
func (a *Agent) NextQueuedMessage(t MsgType) *Message {
	msgs := a.queuedMessages(t)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[0]
}

// hasQueued reports whether msg is still on the agent's message queue.
func (a *Agent) hasQueued(msg *Message) bool {
	for _, m := range a.queue {
		if m == msg {
			return true
		}
	}
	return false
}

// removeFromQueue drops msg from the agent's message queue; it reports
// whether the message was present.
func (a *Agent) removeFromQueue(msg *Message) bool {
	for i, m := range a.queue {
		if m == msg {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			return true
		}
	}
	return false
}

// messagePriority returns the priority value a registered priority
// function assigns to msg; ok is false when none is registered.
func (a *Agent) messagePriority(msg *Message) (int, bool) {
	f, ok := a.priorities[msg.Type]
	if !ok {
		return 0, false
	}
	return f(msg), true
}

// AddSubscriber registers another agent to observe messages of the given
// type that this agent receives. Observed messages dispatch on the
// subscriber immediately and are never queued there.
func (a *Agent) AddSubscriber(sub *Agent, t MsgType) {
	if sub == a {
		panic("agent cannot subscribe to itself")
	}
	a.subscribers[t] = append(a.subscribers[t], sub)
}

func (a *Agent) notifySubscribers(msg *Message) {
	for _, sub := range a.subscribers[msg.Type] {
		sub.dispatch(msg)
	}
}
