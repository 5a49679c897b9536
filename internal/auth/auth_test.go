package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestRequireToken(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", RequireToken(StaticToken{Token: "s3cret"}), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"s3cret", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("header %q: expected %d, got %d", tc.header, tc.want, rr.Code)
		}
	}
}

func TestDenyListAdmit(t *testing.T) {
	testlog.Start(t)
	d, err := ParseDenyList([]string{"42", "10.0.0.9", " "})
	if err != nil {
		t.Fatalf("parse deny list: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}

	from := netip.MustParseAddrPort("127.0.0.1:19133")
	if err := d.Admit(42, from); !errors.Is(err, protocol.ErrConnectionBanned) {
		t.Fatalf("expected banned guid, got %v", err)
	}
	if err := d.Admit(7, netip.MustParseAddrPort("[::ffff:10.0.0.9]:1")); !errors.Is(err, protocol.ErrConnectionBanned) {
		t.Fatalf("expected banned mapped address, got %v", err)
	}
	if err := d.Admit(7, from); err != nil {
		t.Fatalf("expected admit, got %v", err)
	}

	if _, err := ParseDenyList([]string{"not-a-guid"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
