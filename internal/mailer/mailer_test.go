package mailer

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"roamio/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationEmail(t *testing.T) {
	subject, body, err := VerificationEmail("reset_password", "123456", 10)
	require.NoError(t, err)
	assert.Contains(t, subject, "123456")
	assert.Contains(t, body, "reset your password")
	assert.Contains(t, body, "10 minutes")
}

func TestNew_FallsBackToLogSender(t *testing.T) {
	sender := New(&config.Config{}, nil)
	logSender, ok := sender.(*LogSender)
	require.True(t, ok)

	require.NoError(t, sender.Send(context.Background(), "a@example.com", "hi", "<p>x</p>"))
	sent := logSender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@example.com", sent[0].To)
}

// fakeSMTP accepts a single message and hands its DATA section to the returned channel.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"), strings.HasPrefix(cmd, "RSET"), strings.HasPrefix(cmd, "NOOP"):
				write("250 ok")
			case cmd == "DATA":
				write("354 go ahead")
				var sb strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					sb.WriteString(l)
				}
				data <- sb.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("502 unsupported")
			}
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, data
}

func TestSMTPSender_Send(t *testing.T) {
	host, port, data := fakeSMTP(t)
	sender := NewSMTPSender(host, port, "", "", "noreply@roamio.test")

	err := sender.Send(context.Background(), "traveler@example.com", "Roamio verification code: 654321", "<p>654321</p>")
	require.NoError(t, err)

	msg := <-data
	assert.Contains(t, msg, "To: traveler@example.com")
	assert.Contains(t, msg, "From: noreply@roamio.test")
	assert.Contains(t, msg, "654321")
}
