package serial

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPair(t *testing.T) (master, slave *os.File, port *Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err = Open(Config{
		Device:   slave.Name(),
		BaudRate: 115200,
	})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, slave, port
}

// readByte busy-polls the port until a byte arrives or the timeout expires.
func readByte(t *testing.T, port *Port, timeout time.Duration) byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b, ok, err := port.TryReadByte()
		require.NoError(t, err)
		if ok {
			return b
		}
	}
	t.Fatal("timeout waiting for byte")
	return 0
}

func TestPort_BasicRead(t *testing.T) {
	master, _, port := openPair(t)

	_, err := master.Write([]byte{0x42})
	require.NoError(t, err)

	require.Equal(t, byte(0x42), readByte(t, port, 100*time.Millisecond))
}

func TestPort_ReadIsNonBlocking(t *testing.T) {
	_, _, port := openPair(t)

	start := time.Now()
	b, ok, err := port.TryReadByte()
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, b)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPort_WriteByte(t *testing.T) {
	master, _, port := openPair(t)

	ok, err := port.TryWriteByte(0xff)
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, 1)
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0xff), buf[0])
}

func TestPort_RawModePassesControlBytes(t *testing.T) {
	master, _, port := openPair(t)

	// ^C, XON, XOFF, CR, LF, ^V: all would be interpreted by a cooked line.
	special := []byte{0x03, 0x11, 0x13, '\r', '\n', 0x16}
	_, err := master.Write(special)
	require.NoError(t, err)

	for _, want := range special {
		require.Equal(t, want, readByte(t, port, 100*time.Millisecond))
	}
}

func TestPort_FullDuplex(t *testing.T) {
	master, _, port := openPair(t)

	// Echo the master side back to the slave.
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := master.Read(buf)
			if err != nil {
				return
			}
			if _, err := master.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 256; {
			ok, err := port.TryWriteByte(byte(i))
			if err != nil {
				return
			}
			if ok {
				i++
			}
		}
	}()

	for i := 0; i < 256; i++ {
		require.Equal(t, byte(i), readByte(t, port, time.Second))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for writer")
	}
}

func TestPort_FlushInput(t *testing.T) {
	master, _, port := openPair(t)

	_, err := master.Write([]byte("stale"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, port.FlushInput())

	_, ok, err := port.TryReadByte()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPort_SetSpeed(t *testing.T) {
	_, slave, port := openPair(t)

	require.NoError(t, port.SetSpeed(9600))
	require.Equal(t, 9600, port.BaudRate())

	termios, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.Equal(t, uint32(unix.B9600), termios.Cflag&unix.CBAUD)

	err = port.SetSpeed(12345)
	require.ErrorIs(t, err, ErrUnsupportedBaudRate)
	require.Equal(t, 9600, port.BaudRate())
}

func TestOpen_UnsupportedBaudRate(t *testing.T) {
	_, err := Open(Config{Device: "/dev/null", BaudRate: 1234})
	require.ErrorIs(t, err, ErrUnsupportedBaudRate)
	require.False(t, SupportedBaudRate(1234))
	require.True(t, SupportedBaudRate(115200))
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(Config{Device: "/nonexistent/tty"})
	require.Error(t, err)
	require.True(t, errors.Is(err, unix.ENOENT))
}

func TestPort_CloseRestoresTermios(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	before, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.NotZero(t, before.Lflag&unix.ICANON)

	port, err := Open(Config{Device: slave.Name()})
	require.NoError(t, err)

	during, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.Zero(t, during.Lflag&unix.ICANON)
	require.Zero(t, during.Lflag&unix.ECHO)

	require.NoError(t, port.Close())

	after, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.Equal(t, before.Lflag, after.Lflag)
	require.Equal(t, before.Iflag, after.Iflag)

	// Should be a no-op due to closeOnce
	require.NoError(t, port.Close())

	_, _, err = port.TryReadByte()
	require.ErrorIs(t, err, ErrClosed)
	_, err = port.TryWriteByte(1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestPort_Reset(t *testing.T) {
	master, _, port := openPair(t)

	require.NoError(t, port.Reset())

	_, err := master.Write([]byte{0x07})
	require.NoError(t, err)
	require.Equal(t, byte(0x07), readByte(t, port, 100*time.Millisecond))
	require.Equal(t, 115200, port.BaudRate())
}

func TestPort_HangupReadsNothing(t *testing.T) {
	master, _, port := openPair(t)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	// A hung-up tty reads zero bytes, which is "nothing available", not an error.
	for i := 0; i < 3; i++ {
		_, ok, err := port.TryReadByte()
		require.NoError(t, err)
		require.False(t, ok)
	}

	require.NoError(t, port.Close())
	_, _, err := port.TryReadByte()
	require.ErrorIs(t, err, ErrClosed)
}
