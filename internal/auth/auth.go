// Package auth holds the two gates a peer applies: a shared token for the
// admin HTTP routes and a deny list consulted during MTU negotiation.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an admin token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies all.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// RequireToken rejects requests whose bearer token v does not accept.
func RequireToken(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || v.Validate(strings.TrimSpace(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

// DenyList bans remote GUIDs and addresses. Its Admit method has the shape of
// handshake.Admission.
type DenyList struct {
	mu    sync.RWMutex
	guids map[uint64]struct{}
	addrs map[netip.Addr]struct{}
}

func NewDenyList() *DenyList {
	return &DenyList{
		guids: make(map[uint64]struct{}),
		addrs: make(map[netip.Addr]struct{}),
	}
}

// ParseDenyList reads entries that are either a decimal GUID or an IP
// address.
func ParseDenyList(entries []string) (*DenyList, error) {
	d := NewDenyList()
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			d.BanAddr(addr)
			continue
		}
		guid, err := strconv.ParseUint(entry, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("auth: deny entry %q is neither guid nor address", entry)
		}
		d.BanGUID(guid)
	}
	return d, nil
}

func (d *DenyList) BanGUID(guid uint64) {
	d.mu.Lock()
	d.guids[guid] = struct{}{}
	d.mu.Unlock()
}

func (d *DenyList) BanAddr(addr netip.Addr) {
	d.mu.Lock()
	d.addrs[addr.Unmap()] = struct{}{}
	d.mu.Unlock()
}

func (d *DenyList) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.guids) + len(d.addrs)
}

func (d *DenyList) Admit(guid uint64, from netip.AddrPort) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.guids[guid]; ok {
		return protocol.ErrConnectionBanned
	}
	if _, ok := d.addrs[from.Addr().Unmap()]; ok {
		return protocol.ErrConnectionBanned
	}
	return nil
}
