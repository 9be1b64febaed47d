package inbox

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const (
	pollInterval = 90 * time.Second
	fetchCount   = 20
	cacheSize    = 5
)

// Mail is one cached inbox envelope.
type Mail struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// Config for the IMAP polling client.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Poller keeps a small cache of the most recent inbox envelopes, refreshed on
// a fixed cadence. Everything is best effort: a broken connection only means
// an empty or stale cache.
type Poller struct {
	cfg Config

	mu    sync.RWMutex
	cache []Mail
	ready bool
}

// New builds a poller. Returns nil when IMAP is not configured.
func New(cfg Config) *Poller {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil
	}
	if cfg.Port <= 0 {
		cfg.Port = 993
	}
	return &Poller{cfg: cfg}
}

// Start connects and polls until ctx is cancelled. Call in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port), nil)
	if err != nil {
		log.Printf("inbox: dial failed, running without inbox: %v", err)
		return
	}
	defer c.Logout()

	if err := c.Login(p.cfg.User, p.cfg.Password); err != nil {
		log.Printf("inbox: login failed, running without inbox: %v", err)
		return
	}
	log.Println("inbox: connected")

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	if err := p.refresh(c); err != nil {
		log.Printf("inbox: initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refresh(c); err != nil {
				log.Printf("inbox: refresh failed: %v", err)
			}
		}
	}
}

// Recent returns up to max cached envelopes, newest first. Empty until the
// first successful refresh.
func (p *Poller) Recent(max int) []Mail {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready || max <= 0 {
		return nil
	}
	if max > len(p.cache) {
		max = len(p.cache)
	}
	out := make([]Mail, max)
	copy(out, p.cache[:max])
	return out
}

func (p *Poller) refresh(c *client.Client) error {
	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}
	if mbox.Messages == 0 {
		p.setCache(nil)
		return nil
	}

	from := uint32(1)
	if mbox.Messages > fetchCount {
		from = mbox.Messages - fetchCount + 1
	}
	seq := new(imap.SeqSet)
	seq.AddRange(from, mbox.Messages)

	msgs := make(chan *imap.Message, fetchCount)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seq, []imap.FetchItem{imap.FetchEnvelope}, msgs)
	}()

	var list []Mail
	for msg := range msgs {
		if msg.Envelope == nil {
			continue
		}
		m := Mail{Subject: msg.Envelope.Subject, From: "Unknown"}
		if m.Subject == "" {
			m.Subject = "(no subject)"
		}
		if len(msg.Envelope.From) > 0 {
			m.From = msg.Envelope.From[0].Address()
		}
		m.Snippet = fmt.Sprintf("%s — %s", m.From, m.Subject)
		if len(m.Snippet) > 120 {
			m.Snippet = m.Snippet[:120]
		}
		list = append(list, m)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	// newest first, keep the top few
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	if len(list) > cacheSize {
		list = list[:cacheSize]
	}
	p.setCache(list)
	log.Printf("inbox: cached %d envelopes", len(list))
	return nil
}

func (p *Poller) setCache(list []Mail) {
	p.mu.Lock()
	p.cache = list
	p.mu.Unlock()
}
