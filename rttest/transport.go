package rttest

// Transport is the byte-level contract the protocol loops drive. Both
// methods must return immediately: a false result with a nil error means
// "nothing transferred, try again".
//
// TryWriteByte and TryReadByte are called from different goroutines.
type Transport interface {
	TryWriteByte(b byte) (bool, error)
	TryReadByte() (byte, bool, error)
}

// Port is a Transport owned by the Controller for the duration of a run.
type Port interface {
	Transport
	FlushInput() error
	Close() error
}
