// Package serial provides a minimal, Linux-only serial port transport
// designed for saturating a link one byte at a time.
//
// This package is the transport of the UART real-time stress tester in
// cmd/uart-rt-test, where two busy-polling loops push an 8-bit counter
// through the port as fast as the line allows and check that it arrives in
// sequence on the other end.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Raw 8N1 mode, no flow control, no line discipline translation
//   - Non-blocking single-byte reads and writes that never park the caller
//   - One reader and one writer may run concurrently
//   - Terminal settings restored on Close
//   - PTY-based tests for reliability
//
// This package does **not** support Windows.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	// Busy-poll for a byte
//	for {
//	    b, ok, err := port.TryReadByte()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if ok {
//	        fmt.Printf("Received: %02x\n", b)
//	        break
//	    }
//	}
//
//	// Write a byte, retrying while the output queue is full
//	for {
//	    ok, err := port.TryWriteByte(0x2a)
//	    if err != nil || ok {
//	        break
//	    }
//	}
package serial
