package protocol

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig() SessionConfig {
	return SessionConfig{
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		Timeout:     50 * time.Millisecond,
		Terminator:  "\n",
		SettleDelay: 0,
	}
}

// readScript feeds queued chunks to Read and behaves like an idle line once
// the queue is empty.
type readScript struct {
	chunks []string
}

func (r *readScript) push(chunks ...string) {
	r.chunks = append(r.chunks, chunks...)
}

func (r *readScript) read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	return copy(p, chunk), nil
}

func expectPrepare(port *MockPort) {
	gomock.InOrder(
		port.EXPECT().SetDTR(false).Return(nil),
		port.EXPECT().SetRTS(false).Return(nil),
		port.EXPECT().ResetInputBuffer().Return(nil),
		port.EXPECT().ResetOutputBuffer().Return(nil),
	)
}

func openTestSession(t *testing.T, ctrl *gomock.Controller, cfg SessionConfig) (*Session, *MockPort) {
	t.Helper()

	port := NewMockPort(ctrl)
	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), cfg).Return(port, nil)
	expectPrepare(port)

	s, err := Open(context.Background(), dialer, cfg, nil)
	require.NoError(t, err)
	require.True(t, s.IsOpen())
	return s, port
}

func TestSessionConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*SessionConfig)
		kind   ConfigErrorKind
		field  string
	}{
		{"missing port", func(c *SessionConfig) { c.Port = "" }, MissingField, "port"},
		{"zero baud", func(c *SessionConfig) { c.BaudRate = 0 }, InvalidValue, "baud_rate"},
		{"negative timeout", func(c *SessionConfig) { c.Timeout = -time.Second }, InvalidValue, "timeout"},
		{"empty terminator", func(c *SessionConfig) { c.Terminator = "" }, InvalidValue, "terminator"},
		{"long terminator", func(c *SessionConfig) { c.Terminator = "\r\n\n" }, InvalidValue, "terminator"},
		{"negative settle delay", func(c *SessionConfig) { c.SettleDelay = -1 }, InvalidValue, "settle_delay"},
	}

	require.NoError(t, testConfig().Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			var cfgErr *ConfigError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tc.kind, cfgErr.Kind)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Run("prepares the line and waits the settle delay", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.SettleDelay = 30 * time.Millisecond

		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), cfg).Return(port, nil)
		expectPrepare(port)

		start := time.Now()
		s, err := Open(context.Background(), dialer, cfg, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), cfg.SettleDelay)
		assert.Equal(t, cfg, s.Config())

		port.EXPECT().Close().Return(nil)
		require.NoError(t, s.Close())
	})

	t.Run("rejects invalid config before dialing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := NewMockDialer(ctrl)

		cfg := testConfig()
		cfg.BaudRate = -9600

		s, err := Open(context.Background(), dialer, cfg, nil)
		assert.Nil(t, s)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, InvalidValue, cfgErr.Kind)
	})

	t.Run("no dialer", func(t *testing.T) {
		_, err := Open(context.Background(), nil, testConfig(), nil)
		assert.ErrorIs(t, err, ErrNoDialer)
	})

	t.Run("dial failure keeps the cause", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := NewMockDialer(ctrl)
		cause := classifyOpenError(syscall.ENOENT)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(nil, cause)

		s, err := Open(context.Background(), dialer, testConfig(), nil)
		assert.Nil(t, s)

		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "/dev/ttyUSB0", connErr.Port)
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		assert.ErrorIs(t, err, syscall.ENOENT)
	})

	t.Run("nil port", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := Open(context.Background(), dialer, testConfig(), nil)
		assert.ErrorIs(t, err, ErrNilPort)
	})

	t.Run("setup failure closes the port", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)
		setupErr := errors.New("ioctl failed")

		gomock.InOrder(
			dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(port, nil),
			port.EXPECT().SetDTR(false).Return(setupErr),
			port.EXPECT().Close().Return(nil),
		)

		_, err := Open(context.Background(), dialer, testConfig(), nil)
		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, setupErr)
	})

	t.Run("cancelled during settle delay", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)

		cfg := testConfig()
		cfg.SettleDelay = 10 * time.Second

		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(port, nil)
		port.EXPECT().SetDTR(false).Return(nil)
		port.EXPECT().SetRTS(false).Return(nil)
		port.EXPECT().Close().Return(nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := Open(ctx, dialer, cfg, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestWriteLine(t *testing.T) {
	t.Run("appends terminator after discarding stale input", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.Terminator = "\r\n"
		s, port := openTestSession(t, ctrl, cfg)

		gomock.InOrder(
			port.EXPECT().ResetInputBuffer().Return(nil),
			port.EXPECT().Write([]byte("GPIO_OUTPUT 2 1\r\n")).Return(17, nil),
		)

		require.NoError(t, s.WriteLine("GPIO_OUTPUT 2 1"))
		stats := s.Stats()
		assert.Equal(t, int64(17), stats.BytesWritten)
		assert.Equal(t, int64(1), stats.LinesWritten)
	})

	t.Run("short write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())

		port.EXPECT().ResetInputBuffer().Return(nil)
		port.EXPECT().Write(gomock.Any()).Return(3, nil)

		err := s.WriteLine("PING")
		var writeErr *WriteError
		require.ErrorAs(t, err, &writeErr)
		assert.ErrorIs(t, err, ErrShortWrite)
	})

	t.Run("transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())
		ioErr := errors.New("device unplugged")

		port.EXPECT().ResetInputBuffer().Return(nil)
		port.EXPECT().Write(gomock.Any()).Return(0, ioErr)

		err := s.WriteLine("PING")
		var writeErr *WriteError
		require.ErrorAs(t, err, &writeErr)
		assert.ErrorIs(t, err, ioErr)
	})

	t.Run("drops buffered bytes from an earlier reply", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())

		script := &readScript{}
		script.push("first\nlate reply\n")
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(script.read).AnyTimes()
		port.EXPECT().ResetInputBuffer().Return(nil)
		port.EXPECT().Write(gomock.Any()).Return(5, nil)

		line, err := s.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "first", string(line))

		require.NoError(t, s.WriteLine("NEXT"))
		script.push("fresh\n")

		line, err = s.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(line))
	})
}

func TestReadLine(t *testing.T) {
	t.Run("assembles a line from several reads", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.Terminator = "\r\n"
		s, port := openTestSession(t, ctrl, cfg)

		script := &readScript{}
		script.push("RESPONSE: ADC_", "INPUT, PIN: 4, VALUE: 512, STATUS: OK\r", "\nnext")
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(script.read).AnyTimes()

		line, err := s.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "RESPONSE: ADC_INPUT, PIN: 4, VALUE: 512, STATUS: OK", string(line))
		assert.Equal(t, int64(1), s.Stats().LinesRead)
	})

	t.Run("keeps bytes after the terminator", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())

		script := &readScript{}
		script.push("A\nB\n")
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).Times(1)
		port.EXPECT().Read(gomock.Any()).DoAndReturn(script.read).Times(1)

		first, err := s.ReadLine()
		require.NoError(t, err)
		second, err := s.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "A", string(first))
		assert.Equal(t, "B", string(second))
	})

	t.Run("timeout discards the partial line", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.Timeout = 30 * time.Millisecond
		s, port := openTestSession(t, ctrl, cfg)

		script := &readScript{}
		script.push("RESPONSE: GPIO_OUT")
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(script.read).AnyTimes()

		start := time.Now()
		line, err := s.ReadLine()
		elapsed := time.Since(start)

		assert.Nil(t, line)
		assert.ErrorIs(t, err, ErrReadTimeout)
		assert.GreaterOrEqual(t, elapsed, cfg.Timeout)
		assert.Less(t, elapsed, 500*time.Millisecond)
		assert.Equal(t, int64(1), s.Stats().Timeouts)

		script.push("PUT, PIN: 2, STATUS: OK\n")
		line, err = s.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "PUT, PIN: 2, STATUS: OK", string(line))
	})

	t.Run("line too long", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.Timeout = time.Second
		s, port := openTestSession(t, ctrl, cfg)

		noise := strings.Repeat("x", readChunkSize)
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, noise), nil
		}).AnyTimes()

		_, err := s.ReadLine()
		var readErr *ReadError
		require.ErrorAs(t, err, &readErr)
		assert.ErrorIs(t, err, ErrLineTooLong)
	})

	t.Run("transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())
		ioErr := errors.New("port reset")

		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil)
		port.EXPECT().Read(gomock.Any()).Return(0, ioErr)

		_, err := s.ReadLine()
		var readErr *ReadError
		require.ErrorAs(t, err, &readErr)
		assert.ErrorIs(t, err, ioErr)
	})
}

func TestClose(t *testing.T) {
	t.Run("releases the handle exactly once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())

		port.EXPECT().Close().Return(nil).Times(1)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		assert.False(t, s.IsOpen())

		assert.ErrorIs(t, s.WriteLine("PING"), ErrSessionClosed)
		_, err := s.ReadLine()
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("close error is reported once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())
		closeErr := errors.New("bad file descriptor")

		port.EXPECT().Close().Return(closeErr).Times(1)

		assert.ErrorIs(t, s.Close(), closeErr)
		assert.NoError(t, s.Close())
	})

	t.Run("never opened", func(t *testing.T) {
		var nilSession *Session
		assert.NoError(t, nilSession.Close())
		assert.NoError(t, nilSession.Close())
		assert.False(t, nilSession.IsOpen())

		empty := &Session{}
		assert.NoError(t, empty.Close())
		assert.NoError(t, empty.Close())
	})
}

func TestWithSession(t *testing.T) {
	t.Run("closes after success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(port, nil)
		expectPrepare(port)
		port.EXPECT().Close().Return(nil)

		called := false
		err := WithSession(context.Background(), dialer, testConfig(), nil, func(s *Session) error {
			called = true
			assert.True(t, s.IsOpen())
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("closes after failure and keeps the failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(port, nil)
		expectPrepare(port)
		port.EXPECT().Close().Return(errors.New("close failed"))

		fnErr := errors.New("command failed")
		err := WithSession(context.Background(), dialer, testConfig(), nil, func(*Session) error {
			return fnErr
		})
		assert.Equal(t, fnErr, err)
	})

	t.Run("closes after panic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		port := NewMockPort(ctrl)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(port, nil)
		expectPrepare(port)
		port.EXPECT().Close().Return(nil)

		assert.Panics(t, func() {
			_ = WithSession(context.Background(), dialer, testConfig(), nil, func(*Session) error {
				panic("boom")
			})
		})
	})

	t.Run("open failure skips fn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := NewMockDialer(ctrl)
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(nil, ErrDeviceInUse)

		err := WithSession(context.Background(), dialer, testConfig(), nil, func(*Session) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorIs(t, err, ErrDeviceInUse)
	})
}

func TestClassifyOpenError(t *testing.T) {
	assert.ErrorIs(t, classifyOpenError(syscall.ENOENT), ErrDeviceNotFound)
	assert.ErrorIs(t, classifyOpenError(os.ErrPermission), ErrPermissionDenied)

	other := errors.New("unexpected")
	assert.Equal(t, other, classifyOpenError(other))
}

func TestReadLineMatching(t *testing.T) {
	isReply := func(line []byte) bool { return strings.HasPrefix(string(line), "RESPONSE:") }

	t.Run("skips lines the matcher rejects", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, port := openTestSession(t, ctrl, testConfig())

		script := &readScript{}
		script.push("I (1234) cmd: received\n", "\nRESPONSE: CLOSED_LOOP, ID: 1, STATUS: OK\n")
		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(script.read).AnyTimes()

		line, err := s.ReadLineMatching(isReply)
		require.NoError(t, err)
		assert.Equal(t, "RESPONSE: CLOSED_LOOP, ID: 1, STATUS: OK", string(line))

		stats := s.Stats()
		assert.Equal(t, int64(1), stats.LinesRead)
		assert.Equal(t, int64(2), stats.LinesSkipped)
	})

	t.Run("skipped lines do not extend the timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cfg := testConfig()
		cfg.Timeout = 40 * time.Millisecond
		s, port := openTestSession(t, ctrl, cfg)

		port.EXPECT().SetReadTimeout(gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			time.Sleep(5 * time.Millisecond)
			return copy(p, "log\n"), nil
		}).AnyTimes()

		start := time.Now()
		line, err := s.ReadLineMatching(isReply)
		elapsed := time.Since(start)

		assert.Nil(t, line)
		assert.ErrorIs(t, err, ErrReadTimeout)
		assert.Less(t, elapsed, 500*time.Millisecond)
		assert.Positive(t, s.Stats().LinesSkipped)
	})
}
