// ABOUTME: Diagnostic tool for time server exchanges
// ABOUTME: Runs repeated four-timestamp exchanges and prints offset, RTT and the filtered best sample
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/discovery"
	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	"github.com/Dozenal-Clock/dozclock-go/pkg/protocol"
	"github.com/Dozenal-Clock/dozclock-go/pkg/timesource"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	serverAddr = flag.String("server", "", "Server address (default: find over mDNS)")
	count      = flag.Int("n", 10, "Number of exchanges")
	interval   = flag.Duration("interval", 200*time.Millisecond, "Gap between exchanges")
	maxRTT     = flag.Duration("max-rtt", sync.DefaultMaxRTT, "Discard samples slower than this")
	verbose    = flag.Bool("v", false, "Log protocol traffic")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("logger: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	addr := *serverAddr
	if addr == "" {
		fmt.Println("Browsing for time servers...")
		info, err := discovery.Find(ctx, logger)
		if err != nil {
			log.Fatalf("discovery: %v", err)
		}
		addr = info.Addr()
		fmt.Printf("Found %s at %s\n", info.Name, addr)
	}

	c := protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		ClientID:   uuid.New().String(),
		Name:       "sync-probe",
	}, logger)
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("connect %s: %v", addr, err)
	}
	defer c.Close()

	hello := c.ServerHello()
	fmt.Printf("Connected to %q (%s)\n\n", hello.Name, hello.ServerID)
	fmt.Printf("%4s %14s %12s\n", "#", "offset", "rtt")

	filter := sync.NewFilter(*maxRTT, logger)
	for i := 1; i <= *count; i++ {
		t1, t2, t3, t4, err := c.ExchangeTime(ctx)
		if err != nil {
			log.Fatalf("exchange %d: %v", i, err)
		}
		s := sync.NewSample(t1, t2, t3, t4)
		kept := filter.Add(t1, t2, t3, t4)
		mark := ""
		if !kept {
			mark = "  discarded"
		}
		fmt.Printf("%4d %14s %12s%s\n", i,
			time.Duration(s.Offset)*time.Microsecond,
			time.Duration(s.RTT)*time.Microsecond, mark)
		time.Sleep(*interval)
	}
	_ = c.SendGoodbye("probe finished")

	best, ok := filter.Best()
	if !ok {
		fmt.Println("\nAll samples discarded")
		os.Exit(1)
	}
	fmt.Printf("\nBest: offset %s, rtt %s (%d discarded)\n",
		time.Duration(best.Offset)*time.Microsecond,
		time.Duration(best.RTT)*time.Microsecond,
		filter.Discarded())

	r, err := timesource.NewRemote(timesource.RemoteConfig{Addr: addr, MaxRTT: *maxRTT}, logger).Read(ctx)
	if err != nil {
		log.Fatalf("authority read: %v", err)
	}
	fmt.Printf("Authority reads %s\n", r.Time.Format(time.RFC3339Nano))
}
