package horosafe

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func stubLookup(t *testing.T, table map[string][]string) {
	t.Helper()
	prev := lookupHost
	lookupHost = func(host string) ([]string, error) {
		if addrs, ok := table[host]; ok {
			return addrs, nil
		}
		return nil, errors.New("no such host")
	}
	t.Cleanup(func() { lookupHost = prev })
}

func TestValidateURL(t *testing.T) {
	stubLookup(t, map[string][]string{
		"cdn.example.com":    {"93.184.216.34"},
		"internal.corp":      {"10.1.2.3"},
		"rebind.example.com": {"93.184.216.34", "127.0.0.1"},
	})

	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://cdn.example.com/img/a.jpg", nil},
		{"http://cdn.example.com/a.jpg", nil},
		{"https://unresolvable.example/a.jpg", nil},
		{"ftp://cdn.example.com/a.jpg", ErrUnsafeScheme},
		{"s3://bucket/a.jpg", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://[::1]/admin", ErrSSRF},
		{"http://[::ffff:10.0.0.1]/", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://192.168.1.1/api", ErrSSRF},
		{"https://internal.corp/x", ErrSSRF},
		{"https://rebind.example.com/x", ErrSSRF},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateURL_NoHost(t *testing.T) {
	if err := ValidateURL("https:///path"); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"view-1", "grid_3.cell", "tab:42"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "has space", "a/b", strings.Repeat("a", MaxIdentifierLen+1)} {
		if err := ValidateIdentifier(bad); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ValidateIdentifier(%q) = %v, want ErrInvalidIdentifier", bad, err)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"::1", true},
		{"fd00::1", true},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		if got := isPrivate(netip.MustParseAddr(tt.ip)); got != tt.private {
			t.Errorf("isPrivate(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
