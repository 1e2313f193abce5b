package guestws

// PassiveKeepAliveHandler reacts to inbound liveness frames.
type PassiveKeepAliveHandler func(t Transport, f Frame)

// KeepAliveHandlerIgnore leaves remote pings unanswered. The server's ping is treated
// as a one-way liveness signal that expects no reply.
func KeepAliveHandlerIgnore(Transport, Frame) {}

// KeepAliveHandlerReplyPingWithPong answers every remote ping with the message built by
// pong.
func KeepAliveHandlerReplyPingWithPong(pong KeepAliveMessageFactory) PassiveKeepAliveHandler {
	return func(t Transport, f Frame) {
		if t == nil || f.Kind != FramePing {
			return
		}
		_ = t.Write(pong())
	}
}
