// ABOUTME: Time authority found over mDNS
// ABOUTME: Browses for a time server and reads from it as a Remote
package timesource

import (
	"context"
	gosync "sync"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/discovery"
	"go.uber.org/zap"
)

// DefaultBrowseTimeout bounds how long Read waits for an mDNS answer.
const DefaultBrowseTimeout = 5 * time.Second

// Discovered reads from the first time server that answers on mDNS. The
// address is remembered until a read from it fails.
type Discovered struct {
	config        RemoteConfig
	browseTimeout time.Duration
	log           *zap.Logger
	find          func(ctx context.Context) (string, error)

	mu     gosync.Mutex
	remote *Remote
}

// NewDiscovered creates an mDNS-backed authority. config.Addr is ignored.
func NewDiscovered(config RemoteConfig, browseTimeout time.Duration, log *zap.Logger) *Discovered {
	if browseTimeout <= 0 {
		browseTimeout = DefaultBrowseTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Discovered{
		config:        config,
		browseTimeout: browseTimeout,
		log:           log,
		find: func(ctx context.Context) (string, error) {
			info, err := discovery.Find(ctx, log)
			if err != nil {
				return "", err
			}
			return info.Addr(), nil
		},
	}
}

// Name returns "mdns".
func (d *Discovered) Name() string { return "mdns" }

// Read browses for a server if none is known yet, then reads from it.
func (d *Discovered) Read(ctx context.Context) (Reading, error) {
	remote, err := d.current(ctx)
	if err != nil {
		return Reading{}, unavailable("mdns", err)
	}

	r, err := remote.Read(ctx)
	if err != nil {
		d.mu.Lock()
		if d.remote == remote {
			d.remote = nil
		}
		d.mu.Unlock()
		return Reading{}, err
	}
	return r, nil
}

func (d *Discovered) current(ctx context.Context) (*Remote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.remote != nil {
		return d.remote, nil
	}

	browseCtx, cancel := context.WithTimeout(ctx, d.browseTimeout)
	defer cancel()

	addr, err := d.find(browseCtx)
	if err != nil {
		return nil, err
	}

	cfg := d.config
	cfg.Addr = addr
	d.remote = NewRemote(cfg, d.log)
	d.log.Info("using discovered time server", zap.String("addr", addr))
	return d.remote, nil
}
