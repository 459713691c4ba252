package events

// Publisher is what writers need from a bus
type Publisher interface {
	Publish(changes ...Change)
}

type discard struct{}

func (discard) Publish(...Change) {}

// Discard drops every change. Writers use it when another source, such as
// a database change stream, already feeds the bus.
var Discard Publisher = discard{}
