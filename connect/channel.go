package connect

// a named, bidirectional, tagged message channel between two processes
//
// lifecycle:
// 1. the channel is created by a `Server` (inbound) or `Dialer` (outbound). It can emit right away.
// 2. the owner registers close callbacks with `OnClose` and then calls `Listen` exactly once.
//    Received messages are dispatched in order on one goroutine owned by the channel,
//    so handlers for one channel never run concurrently with each other.
// 3. the channel ends on `Close`, on a transport error, or when the remote side closes.
//    Close callbacks run exactly once, after which `Emit` returns `ErrChannelClosed`.
type Channel interface {
	Id() Id
	// host:port of the remote side, as seen by this side
	RemoteAddr() string
	Emit(tag string, payload string) error
	Close()
	Done() <-chan struct{}
	// a callback added after the channel has closed runs immediately
	OnClose(callback CloseFunction)
	Listen(receive ReceiveFunction)
}

type ReceiveFunction func(channel Channel, message *Message)

type CloseFunction func(channel Channel)

// runs the close callbacks once, trapping errors per callback
func runCloseCallbacks(channel Channel, callbacks []CloseFunction) {
	for _, callback := range callbacks {
		HandleError(func() {
			callback(channel)
		})
	}
}
