// ABOUTME: Remote time authority over the dozclock WebSocket protocol
// ABOUTME: Measures offset to a time server with several filtered exchanges
package timesource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	"github.com/Dozenal-Clock/dozclock-go/internal/version"
	"github.com/Dozenal-Clock/dozclock-go/pkg/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSamples is the number of exchanges per Read.
const DefaultSamples = 4

// RemoteConfig configures a Remote authority.
type RemoteConfig struct {
	Addr    string // host:port of the time server
	Name    string // clock name sent in client/hello
	Samples int
	MaxRTT  time.Duration
}

// Remote reads time from a dozclock time server.
type Remote struct {
	config   RemoteConfig
	clientID string
	log      *zap.Logger
	now      func() time.Time
}

// NewRemote creates a Remote authority. Each Read opens a fresh connection.
func NewRemote(config RemoteConfig, log *zap.Logger) *Remote {
	if config.Samples <= 0 {
		config.Samples = DefaultSamples
	}
	if config.MaxRTT <= 0 {
		config.MaxRTT = sync.DefaultMaxRTT
	}
	if config.Name == "" {
		config.Name = version.Product
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{
		config:   config,
		clientID: uuid.New().String(),
		log:      log,
		now:      time.Now,
	}
}

// Name returns the server address.
func (r *Remote) Name() string { return r.config.Addr }

// Read measures the offset to the server and returns the corrected time.
func (r *Remote) Read(ctx context.Context) (Reading, error) {
	if r.config.Addr == "" {
		return Reading{}, unavailable("remote", errors.New("no server address"))
	}

	sample, err := r.measure(ctx)
	if err != nil {
		return Reading{}, unavailable(r.config.Addr, err)
	}

	offset := time.Duration(sample.Offset) * time.Microsecond
	return Reading{
		Time:   r.now().Add(offset),
		Offset: offset,
		RTT:    time.Duration(sample.RTT) * time.Microsecond,
		Source: r.config.Addr,
	}, nil
}

// measure runs the configured number of exchanges and returns the best one.
func (r *Remote) measure(ctx context.Context) (sync.Sample, error) {
	c := protocol.NewClient(protocol.Config{
		ServerAddr: r.config.Addr,
		ClientID:   r.clientID,
		Name:       r.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
	}, r.log)

	if err := c.Connect(ctx); err != nil {
		return sync.Sample{}, err
	}
	defer func() {
		c.SendGoodbye("resynced")
		c.Close()
	}()

	filter := sync.NewFilter(r.config.MaxRTT, r.log)
	for i := 0; i < r.config.Samples; i++ {
		t1, t2, t3, t4, err := c.ExchangeTime(ctx)
		if err != nil {
			return sync.Sample{}, fmt.Errorf("exchange %d: %w", i+1, err)
		}
		filter.Add(t1, t2, t3, t4)
	}

	best, ok := filter.Best()
	if !ok {
		return sync.Sample{}, fmt.Errorf("all %d samples discarded", r.config.Samples)
	}

	r.log.Debug("time server measured",
		zap.String("server", r.config.Addr),
		zap.Int64("offset_us", best.Offset),
		zap.Int64("rtt_us", best.RTT),
		zap.Int("discarded", filter.Discarded()))

	return best, nil
}
