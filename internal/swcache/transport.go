package swcache

// ChannelTransport delivers page messages over a buffered channel. The page
// layer consumes Messages(); when the buffer is full the oldest message is
// dropped, since only the latest version signal matters.
type ChannelTransport struct {
	ch chan PageMessage
}

func NewChannelTransport(buffer int) *ChannelTransport {
	if buffer <= 0 {
		buffer = 8
	}
	return &ChannelTransport{ch: make(chan PageMessage, buffer)}
}

func (t *ChannelTransport) Notify(msg PageMessage) error {
	for {
		select {
		case t.ch <- msg:
			return nil
		default:
			select {
			case <-t.ch:
			default:
			}
		}
	}
}

// Messages returns the receive side for the page layer.
func (t *ChannelTransport) Messages() <-chan PageMessage {
	return t.ch
}
