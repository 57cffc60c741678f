package client

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// testServer runs a scripted SMTP conversation on a loopback listener and
// records every line the client sent.
type testServer struct {
	provider Provider
	lines    chan string
	done     chan struct{}
}

func startServer(t *testing.T, script func(t *testing.T, c *serverConn)) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &testServer{
		provider: Provider{
			Host: "127.0.0.1",
			Port: ln.Addr().(*net.TCPAddr).Port,
		},
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(srv.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		script(t, &serverConn{
			br:    bufio.NewReader(conn),
			bw:    bufio.NewWriter(conn),
			lines: srv.lines,
		})
	}()

	return srv
}

func (s *testServer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for test server")
	}
}

func (s *testServer) received() []string {
	var out []string
	for {
		select {
		case l := <-s.lines:
			out = append(out, l)
		default:
			return out
		}
	}
}

type serverConn struct {
	br    *bufio.Reader
	bw    *bufio.Writer
	lines chan string
}

func (c *serverConn) reply(line string) {
	fmt.Fprint(c.bw, line+"\r\n")
	c.bw.Flush()
}

func (c *serverConn) readLine(t *testing.T) string {
	t.Helper()
	line, err := c.br.ReadString('\n')
	if err != nil {
		t.Errorf("server read error: %v", err)
		return ""
	}
	line = strings.TrimRight(line, "\r\n")
	c.lines <- line
	return line
}

func (c *serverConn) expect(t *testing.T, want string) {
	t.Helper()
	if got := c.readLine(t); got != want {
		t.Errorf("server expected %q, got %q", want, got)
	}
}

func b64of(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestSendMail_PlainSessionSuccess(t *testing.T) {
	dataCh := make(chan string, 1)

	srv := startServer(t, func(t *testing.T, c *serverConn) {
		c.reply("220 test ESMTP")
		c.expect(t, "EHLO localhost")
		c.reply("250-test.example")
		c.reply("250-SIZE 35882577")
		c.reply("250 AUTH LOGIN PLAIN")
		c.expect(t, "AUTH LOGIN")
		c.reply("334 VXNlcm5hbWU6")
		c.expect(t, b64of("worker@example.com"))
		c.reply("334 UGFzc3dvcmQ6")
		c.expect(t, b64of("app-password"))
		c.reply("235 2.7.0 Accepted")
		c.expect(t, "MAIL FROM:<worker@example.com>")
		c.reply("250 OK")
		c.expect(t, "RCPT TO:<jobs@farm.example>")
		c.reply("250 OK")
		c.expect(t, "DATA")
		c.reply("354 End data with <CR><LF>.<CR><LF>")

		var body []string
		for {
			line, err := c.br.ReadString('\n')
			if err != nil {
				t.Errorf("reading body: %v", err)
				return
			}
			if line == ".\r\n" {
				break
			}
			body = append(body, strings.TrimRight(line, "\r\n"))
		}
		dataCh <- strings.Join(body, "\n")
		c.reply("250 2.0.0 OK queued")

		c.expect(t, "QUIT")
		c.reply("221 Bye")
	})

	err := SendMail(context.Background(), SendParams{
		Provider: srv.provider,
		Username: "worker@example.com",
		Password: "app-password",
		To:       "jobs@farm.example",
		Message:  []byte("Subject: hi\r\n\r\nbody line"),
	})
	if err != nil {
		t.Fatalf("SendMail() error: %v", err)
	}

	srv.wait(t)

	select {
	case body := <-dataCh:
		if !strings.Contains(body, "Subject: hi") || !strings.Contains(body, "body line") {
			t.Fatalf("unexpected DATA body: %q", body)
		}
	default:
		t.Fatalf("server never received the message body")
	}
}

func TestSendMail_AuthRejected(t *testing.T) {
	srv := startServer(t, func(t *testing.T, c *serverConn) {
		c.reply("220 test ESMTP")
		c.expect(t, "EHLO localhost")
		c.reply("250 OK")
		c.expect(t, "AUTH LOGIN")
		c.reply("334 VXNlcm5hbWU6")
		c.readLine(t)
		c.reply("334 UGFzc3dvcmQ6")
		c.readLine(t)
		c.reply("535 5.7.8 Authentication failed")
	})

	err := SendMail(context.Background(), SendParams{
		Provider: srv.provider,
		Username: "worker@example.com",
		Password: "wrong",
		To:       "jobs@farm.example",
		Message:  []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected auth error")
	}
	if !strings.Contains(err.Error(), "535 5.7.8 Authentication failed") {
		t.Fatalf("expected raw server line in error, got: %v", err)
	}
	if strings.Contains(err.Error(), b64of("wrong")) {
		t.Fatalf("error text leaked the credential line: %v", err)
	}

	srv.wait(t)
}

func TestSendMail_StartTLSRejectedBeforeCredentials(t *testing.T) {
	srv := startServer(t, func(t *testing.T, c *serverConn) {
		c.reply("220 test ESMTP")
		c.expect(t, "EHLO localhost")
		c.reply("250-test.example")
		c.reply("250 STARTTLS")
		c.expect(t, "STARTTLS")
		c.reply("454 4.7.0 TLS not available due to temporary reason")
	})

	provider := srv.provider
	provider.StartTLS = true

	err := SendMail(context.Background(), SendParams{
		Provider: provider,
		Username: "worker@example.com",
		Password: "app-password",
		To:       "jobs@farm.example",
		Message:  []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected STARTTLS rejection error")
	}
	if !strings.Contains(err.Error(), "454") {
		t.Fatalf("expected raw server line in error, got: %v", err)
	}

	srv.wait(t)

	for _, line := range srv.received() {
		if strings.Contains(line, b64of("worker@example.com")) || strings.Contains(line, b64of("app-password")) {
			t.Fatalf("credentials crossed the wire after STARTTLS rejection: %q", line)
		}
	}
}

func TestSendMail_RecipientRejectedMidEnvelope(t *testing.T) {
	srv := startServer(t, func(t *testing.T, c *serverConn) {
		c.reply("220 test ESMTP")
		c.expect(t, "EHLO localhost")
		c.reply("250 OK")
		c.expect(t, "AUTH LOGIN")
		c.reply("334 VXNlcm5hbWU6")
		c.readLine(t)
		c.reply("334 UGFzc3dvcmQ6")
		c.readLine(t)
		c.reply("235 Accepted")
		c.expect(t, "MAIL FROM:<worker@example.com>")
		c.reply("250 OK")
		c.expect(t, "RCPT TO:<gone@farm.example>")
		c.reply("550 5.1.1 The email account does not exist")
	})

	err := SendMail(context.Background(), SendParams{
		Provider: srv.provider,
		Username: "worker@example.com",
		Password: "app-password",
		To:       "gone@farm.example",
		Message:  []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected RCPT rejection")
	}
	if !strings.Contains(err.Error(), "550 5.1.1") {
		t.Fatalf("expected raw 550 line, got: %v", err)
	}

	srv.wait(t)
}

func TestSendMail_DialFailure(t *testing.T) {
	t.Parallel()

	err := SendMail(context.Background(), SendParams{
		Provider: Provider{Host: "127.0.0.1", Port: 9}, // typically closed
		Username: "worker@example.com",
		Password: "x",
		To:       "jobs@farm.example",
		Message:  []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if !strings.Contains(err.Error(), "connect") {
		t.Fatalf("expected connect error, got: %v", err)
	}
}

func TestLookupProvider(t *testing.T) {
	t.Parallel()

	gmail := LookupProvider("gmail")
	if gmail.Port != 465 || !gmail.ImplicitTLS || gmail.StartTLS {
		t.Fatalf("unexpected gmail config: %+v", gmail)
	}

	outlook := LookupProvider("outlook")
	if outlook.Port != 587 || outlook.ImplicitTLS || !outlook.StartTLS {
		t.Fatalf("unexpected outlook config: %+v", outlook)
	}

	if got := LookupProvider("legacy-row"); got != gmail {
		t.Fatalf("unknown provider should fall back to gmail, got %+v", got)
	}
}
