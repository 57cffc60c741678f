package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Provider describes how to reach one SMTP submission endpoint. The state
// machine below is identical for every provider; supporting a new one is
// adding a row here, not code.
type Provider struct {
	Host        string
	Port        int
	ImplicitTLS bool // TLS from the first byte (port 465)
	StartTLS    bool // plaintext connect, explicit upgrade (port 587)
}

var providers = map[string]Provider{
	"gmail":   {Host: "smtp.gmail.com", Port: 465, ImplicitTLS: true},
	"outlook": {Host: "smtp.office365.com", Port: 587, StartTLS: true},
}

// LookupProvider maps a stored provider name to its configuration.
// Unknown names fall back to gmail, matching rows created before the
// provider column existed.
func LookupProvider(name string) Provider {
	if p, ok := providers[name]; ok {
		return p
	}
	return providers["gmail"]
}

const (
	commandTimeout = 15 * time.Second
	bodyTimeout    = 60 * time.Second
	acceptTimeout  = 20 * time.Second
	quitTimeout    = 2 * time.Second
)

type SendParams struct {
	Provider Provider
	Username string // mailbox address; also the envelope sender
	Password string
	To       string
	Message  []byte // complete MIME message, CRLF line endings
}

// SendMail drives one complete SMTP submission: connect (TLS or plaintext
// + STARTTLS upgrade), EHLO, AUTH LOGIN, envelope, DATA, QUIT. One
// connection per attempt, no reuse. Every wire step runs under its own
// deadline and the socket is closed on every exit path. Once the server
// acknowledges the DATA body with 250 the send counts as successful; a
// failed QUIT after that is ignored.
func SendMail(ctx context.Context, p SendParams) error {
	addr := net.JoinHostPort(p.Provider.Host, strconv.Itoa(p.Provider.Port))
	dialer := &net.Dialer{Timeout: commandTimeout}

	var (
		conn net.Conn
		err  error
	)
	if p.Provider.ImplicitTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig(p.Provider.Host)}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	s := &session{conn: conn, r: bufio.NewReader(conn)}

	if _, err := s.readReply(commandTimeout, "220"); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	if err := s.command("EHLO localhost", "250", commandTimeout); err != nil {
		return err
	}

	if p.Provider.StartTLS {
		// Anything but 220 here aborts while the wire is still
		// credential-free.
		if err := s.command("STARTTLS", "220", commandTimeout); err != nil {
			return err
		}
		tlsConn := tls.Client(conn, tlsConfig(p.Provider.Host))
		hctx, cancel := context.WithTimeout(ctx, commandTimeout)
		err := tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			return fmt.Errorf("starttls handshake: %w", err)
		}
		s.upgrade(tlsConn)
		if err := s.command("EHLO localhost", "250", commandTimeout); err != nil {
			return err
		}
	}

	if err := s.command("AUTH LOGIN", "334", commandTimeout); err != nil {
		return err
	}
	if err := s.command(b64(p.Username), "334", commandTimeout); err != nil {
		return err
	}
	if err := s.command(b64(p.Password), "235", commandTimeout); err != nil {
		return err
	}

	if err := s.command(fmt.Sprintf("MAIL FROM:<%s>", p.Username), "250", commandTimeout); err != nil {
		return err
	}
	if err := s.command(fmt.Sprintf("RCPT TO:<%s>", p.To), "250", commandTimeout); err != nil {
		return err
	}
	if err := s.command("DATA", "354", commandTimeout); err != nil {
		return err
	}

	if err := s.write(append(p.Message, "\r\n.\r\n"...), bodyTimeout); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if _, err := s.readReply(acceptTimeout, "250"); err != nil {
		return fmt.Errorf("data accept: %w", err)
	}

	if err := s.write([]byte("QUIT\r\n"), quitTimeout); err == nil {
		_, _ = s.readReply(quitTimeout, "")
	}
	return nil
}

func tlsConfig(host string) *tls.Config {
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

type session struct {
	conn net.Conn
	r    *bufio.Reader
}

func (s *session) upgrade(conn net.Conn) {
	s.conn = conn
	s.r = bufio.NewReader(conn)
}

func (s *session) command(cmd, expect string, timeout time.Duration) error {
	label := cmdLabel(cmd)
	if err := s.write([]byte(cmd+"\r\n"), timeout); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if _, err := s.readReply(timeout, expect); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}

var smtpVerbs = map[string]bool{
	"EHLO": true, "STARTTLS": true, "AUTH": true,
	"MAIL": true, "RCPT": true, "DATA": true, "QUIT": true,
}

// cmdLabel names a command for error text without ever echoing the base64
// credential lines of the AUTH LOGIN exchange.
func cmdLabel(cmd string) string {
	verb, _, _ := strings.Cut(cmd, " ")
	if smtpVerbs[verb] {
		return verb
	}
	return "auth exchange"
}

func (s *session) write(data []byte, timeout time.Duration) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(data)
	return err
}

var (
	finalLineRe = regexp.MustCompile(`^\d{3} `)
	errorLineRe = regexp.MustCompile(`^[45]\d\d[ -]`)
)

// readReply consumes one SMTP reply, which may span multiple "250-"
// continuation lines, and returns the final "NNN " line. Any 4xx/5xx line
// anywhere in the reply fails immediately with the raw server text, which
// downstream classification depends on.
func (s *session) readReply(timeout time.Duration, expect string) (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if errorLineRe.MatchString(line) {
			return "", fmt.Errorf("smtp error: %s", line)
		}
		if finalLineRe.MatchString(line) {
			if expect != "" && !strings.HasPrefix(line, expect+" ") {
				return "", fmt.Errorf("unexpected reply: %s", line)
			}
			return line, nil
		}
	}
}
