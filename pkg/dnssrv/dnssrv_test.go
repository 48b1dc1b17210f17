package dnssrv

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetdm/munki-conditions/pkg/execcmd/execcmdtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

const digCmd = "/usr/bin/dig -t SRV _gc._tcp.example.org"

const found = `
; <<>> DiG 9.10.6 <<>> -t SRV _gc._tcp.example.org
;; global options: +cmd
;; Got answer:
;; ->>HEADER<<- opcode: QUERY, status: NOERROR, id: 4242
;; flags: qr rd ra; QUERY: 1, ANSWER: 2, AUTHORITY: 0, ADDITIONAL: 1

;; QUESTION SECTION:
;_gc._tcp.example.org.		IN	SRV

;; ANSWER SECTION:
_gc._tcp.example.org.	600	IN	SRV	0 100 3268 DC01.Domain.Example.org.
_gc._tcp.example.org.	600	IN	SRV	0 100 3268 dc02.domain.example.org.

;; Query time: 3 msec
;; SERVER: 10.0.0.53#53(10.0.0.53)
`

const nxdomain = `
; <<>> DiG 9.10.6 <<>> -t SRV _gc._tcp.example.org
;; ->>HEADER<<- opcode: QUERY, status: NXDOMAIN, id: 1
;; QUESTION SECTION:
;_gc._tcp.example.org.		IN	SRV

;; AUTHORITY SECTION:
example.org.		300	IN	SOA	ns.example.org. hostmaster.example.org. 1 2 3 4 5
`

func TestAnswerNames(t *testing.T) {
	cases := []struct {
		name   string
		out    string
		forest string
		domain string
		want   bool
	}{
		{"domain in answer", found, "example.org", "domain.example.org", true},
		{"forest only", found, "EXAMPLE.ORG", "other.test", true},
		{"no answer section", nxdomain, "example.org", "domain.example.org", false},
		{"answer for other names", found, "corp.test", "lab.corp.test", false},
		{"section ends at semicolon", ";; ANSWER SECTION:\n;; Query time: 3 msec\ndc01.domain.example.org.\n", "example.org", "domain.example.org", false},
		{"empty", "", "example.org", "domain.example.org", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, AnswerNames([]byte(c.out), c.forest, c.domain))
		})
	}
}

func TestGlobalCatalogAvailable(t *testing.T) {
	t.Run("found on third try", func(t *testing.T) {
		runner := execcmdtest.New().On(digCmd,
			execcmdtest.Response{Err: errors.New("connection timed out; no servers could be reached")},
			execcmdtest.Response{Output: nxdomain},
			execcmdtest.Response{Output: found},
		)
		r := New(runner, zerolog.Nop(), WithRetry(5, 0))
		assert.True(t, r.GlobalCatalogAvailable(context.Background(), "example.org", "domain.example.org"))
		assert.Equal(t, 3, runner.Count(digCmd))
	})

	t.Run("never found", func(t *testing.T) {
		runner := execcmdtest.New().On(digCmd, execcmdtest.Response{Output: nxdomain})
		r := New(runner, zerolog.Nop(), WithRetry(5, 0))
		assert.False(t, r.GlobalCatalogAvailable(context.Background(), "example.org", "domain.example.org"))
		assert.Equal(t, 5, runner.Count(digCmd))
	})

	t.Run("non-positive attempts query once", func(t *testing.T) {
		for _, attempts := range []int{0, -3} {
			runner := execcmdtest.New().On(digCmd, execcmdtest.Response{Output: nxdomain})
			r := New(runner, zerolog.Nop(), WithRetry(attempts, 0))
			assert.False(t, r.GlobalCatalogAvailable(context.Background(), "example.org", "domain.example.org"))
			assert.Equal(t, 1, runner.Count(digCmd), attempts)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner := execcmdtest.New().On(digCmd, execcmdtest.Response{Output: found})
		r := New(runner, zerolog.Nop(), WithRetry(5, 0))
		assert.False(t, r.GlobalCatalogAvailable(ctx, "example.org", "domain.example.org"))
		assert.Zero(t, runner.Count(digCmd))
	})
}
