package gomotion

// ProtocolPort receives human readable protocol traffic.
type ProtocolPort interface {
	Info(msg string)

	// Println logs the output even when it's muted
	Println(msg string)

	Separator()
	Mute()
	Unmute()
}
