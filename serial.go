package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned by operations on a Port after Close.
	ErrClosed = errors.New("serial: port closed")
	// ErrUnsupportedBaudRate is returned when a baud rate has no termios speed constant.
	ErrUnsupportedBaudRate = errors.New("serial: unsupported baud rate")
)

// Port provides raw, non-blocking, byte-oriented access to a Linux serial port.
//
// TryWriteByte and TryReadByte may be called concurrently from two different
// goroutines (one writer, one reader), since they operate on disjoint
// directions of the same descriptor. Reset and SetSpeed must not race with
// either of them.
type Port struct {
	fd        int
	config    Config
	saved     unix.Termios // settings in place before Open, restored on Close
	closed    atomic.Bool
	closeOnce sync.Once
	rbuf      [1]byte // reader scratch
	wbuf      [1]byte // writer scratch
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device   string
	BaudRate int // default 115200
}

// Open opens a serial port using the provided Config and returns a Port.
// The port is configured for raw 8N1 operation without flow control, and
// stays in non-blocking mode: reads return immediately when nothing is
// buffered.
func Open(cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	speed, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	termios := *saved
	makeRaw(&termios)
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Drop whatever was queued before we took over the line.
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("flush: %w", err)
	}

	return &Port{
		fd:     fd,
		config: cfg,
		saved:  *saved,
	}, nil
}

func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	// Single byte reads. Ignored while O_NONBLOCK is set, but keeps the
	// line usable if a caller clears it.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

// Device returns the device path the port was opened with.
func (s *Port) Device() string {
	return s.config.Device
}

// BaudRate returns the currently configured line speed.
func (s *Port) BaudRate() int {
	return s.config.BaudRate
}

// TryWriteByte attempts to write a single byte without blocking.
// It reports false with a nil error when the output queue is full.
func (s *Port) TryWriteByte(b byte) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	s.wbuf[0] = b
	n, err := unix.Write(s.fd, s.wbuf[:])
	if err != nil {
		if retryable(err) {
			return false, nil
		}
		return false, fmt.Errorf("write: %w", err)
	}
	return n == 1, nil
}

// TryReadByte attempts to read a single byte without blocking.
// It reports false with a nil error when no byte is available.
func (s *Port) TryReadByte() (byte, bool, error) {
	if s.closed.Load() {
		return 0, false, ErrClosed
	}
	n, err := unix.Read(s.fd, s.rbuf[:])
	if err != nil {
		if retryable(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read: %w", err)
	}
	if n != 1 {
		return 0, false, nil
	}
	return s.rbuf[0], true, nil
}

func retryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// SetSpeed changes the line speed and discards any pending input, which was
// received at the previous rate.
func (s *Port) SetSpeed(baud int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	speed, err := baudToUnix(baud)
	if err != nil {
		return err
	}
	termios, err := unix.IoctlGetTermios(s.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= speed
	if err := unix.IoctlSetTermios(s.fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	s.config.BaudRate = baud
	return s.FlushInput()
}

// FlushInput discards data received but not yet read.
func (s *Port) FlushInput() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

// Reset closes and reopens the device with the same configuration.
func (s *Port) Reset() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.release(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fresh, err := Open(s.config)
	if err != nil {
		s.closed.Store(true)
		return fmt.Errorf("reset: %w", err)
	}
	s.fd = fresh.fd
	s.saved = fresh.saved
	return nil
}

// Close restores the terminal settings found at Open and closes the device.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *Port) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.release()
	})
	return err
}

func (s *Port) release() error {
	restoreErr := unix.IoctlSetTermios(s.fd, unix.TCSETS, &s.saved)
	closeErr := unix.Close(s.fd)
	if restoreErr != nil {
		return fmt.Errorf("restore termios: %w", restoreErr)
	}
	return closeErr
}

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// SupportedBaudRate reports whether baud can be passed to Open or SetSpeed.
func SupportedBaudRate(baud int) bool {
	_, ok := baudRates[baud]
	return ok
}

func baudToUnix(baud int) (uint32, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, baud)
	}
	return speed, nil
}
