package transfer

// Message is one frame received on a Channel.
type Message struct {
	IsString bool
	Data     []byte
}

// Text returns a text frame.
func Text(s string) Message {
	return Message{IsString: true, Data: []byte(s)}
}

// Binary returns a binary frame.
func Binary(b []byte) Message {
	return Message{Data: b}
}

// Channel is an open, ordered, message-framed peer channel with send-side
// buffering. *webrtc.DataChannel satisfies it through internal/webrtc.
type Channel interface {
	Send(data []byte) error
	SendText(s string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
	OnMessage(f func(Message))
	Close() error
}
