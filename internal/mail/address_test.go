package mail

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func stubMX(t *testing.T, fn func(domain string) ([]*net.MX, error)) {
	t.Helper()
	old := mxLookup
	mxLookup = fn
	t.Cleanup(func() { mxLookup = old })
}

func TestDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "user@Example.COM", want: "example.com"},
		{in: "user@example.com.", want: "example.com"},
		{in: "user@", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "no-at-sign", wantErr: true},
		{in: "user@ex", wantErr: true},
	}

	for _, tc := range cases {
		got, err := Domain(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Domain(%q): expected error, got %q", tc.in, got)
			}
			if !errors.Is(err, ErrInvalidAddress) {
				t.Fatalf("Domain(%q): expected ErrInvalidAddress, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Domain(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Domain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateRecipient_OK(t *testing.T) {
	var looked string
	stubMX(t, func(domain string) ([]*net.MX, error) {
		looked = domain
		return []*net.MX{{Host: "mx1.example.com.", Pref: 10}}, nil
	})

	if err := ValidateRecipient("jobs@example.com"); err != nil {
		t.Fatalf("ValidateRecipient() error: %v", err)
	}
	if looked != "example.com" {
		t.Fatalf("expected MX lookup for example.com, got %q", looked)
	}
}

func TestValidateRecipient_NoMX(t *testing.T) {
	stubMX(t, func(domain string) ([]*net.MX, error) {
		return nil, nil
	})

	err := ValidateRecipient("jobs@dead.example")
	if err == nil {
		t.Fatalf("expected error for MX-less domain")
	}
	if !strings.Contains(err.Error(), "no MX records") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestValidateRecipient_DNSFailure(t *testing.T) {
	stubMX(t, func(domain string) ([]*net.MX, error) {
		return nil, errors.New("NXDOMAIN")
	})

	if err := ValidateRecipient("jobs@gone.example"); err == nil {
		t.Fatalf("expected error when DNS resolution fails")
	}
}

func TestValidateRecipient_BadSyntaxSkipsDNS(t *testing.T) {
	stubMX(t, func(domain string) ([]*net.MX, error) {
		t.Fatalf("DNS must not be consulted for syntactically invalid addresses")
		return nil, nil
	})

	err := ValidateRecipient("not an address")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
