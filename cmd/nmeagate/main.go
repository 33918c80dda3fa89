package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sealane/nmeagate/config"
	"github.com/sealane/nmeagate/console"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/filter"
	"github.com/sealane/nmeagate/publisher"
	"github.com/sealane/nmeagate/pseudo0183"
	"github.com/sealane/nmeagate/router"
	"github.com/sealane/nmeagate/socketcan"
)

func main() {
	configPath := flag.String("config", "", "path to nmeagate configuration file")
	consoleAddr := flag.String("console-addr", "", "if set, serve the console websocket status feed on this address")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("# missing -config\n")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("# %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := router.New(router.RetryPolicy{
		MaxAttempt: cfg.Retry.MaxAttempt,
		OpenDelay:  cfg.Retry.OpenDelay,
	}, func() {
		if cfg.StopSystem {
			log.Printf("router: a coupler exhausted its retry budget and stop_system is set, shutting down")
			cancel()
		}
	})

	couplers, err := buildCouplers(cfg.Couplers)
	if err != nil {
		log.Fatalf("# %v\n", err)
	}
	for _, c := range couplers {
		r.AddCoupler(c)
	}

	for _, pc := range cfg.Publishers {
		pub, err := buildPublisher(pc)
		if err != nil {
			log.Fatalf("# publisher %s: %v\n", pc.Name, err)
		}
		r.AddPublisher(router.Route{
			Publisher: pub,
			Sources:   pc.Sources,
			Chain:     buildChain(pc.Filters),
		})
	}

	var wg sync.WaitGroup
	if *consoleAddr != "" {
		srv := console.New(r, 0)
		mux := http.NewServeMux()
		mux.HandleFunc("/status", srv.Handler)
		httpSrv := &http.Server{Addr: *consoleAddr, Handler: mux}

		done := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Run(done)
		}()
		go func() {
			<-ctx.Done()
			close(done)
			_ = httpSrv.Close()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("console: %v", err)
			}
		}()
	}

	if err := r.Run(ctx); err != nil {
		log.Printf("router stopped: %v", err)
	}
	wg.Wait()
}

// buildCouplers constructs every non-injector coupler first, then
// injectors, since an injector's target must already exist.
func buildCouplers(configs []config.CouplerConfig) ([]coupler.Coupler, error) {
	byName := map[string]coupler.Coupler{}
	var ordered []coupler.Coupler
	var injectors []config.CouplerConfig

	for _, cc := range configs {
		switch cc.Kind {
		case "injector":
			injectors = append(injectors, cc)
			continue
		}
		c, err := buildCoupler(cc)
		if err != nil {
			return nil, fmt.Errorf("coupler %s: %w", cc.Name, err)
		}
		byName[cc.Name] = c
		ordered = append(ordered, c)
	}

	for _, cc := range injectors {
		target, ok := byName[cc.Target]
		if !ok {
			return nil, fmt.Errorf("coupler %s: injector target %q not found", cc.Name, cc.Target)
		}
		inj := coupler.NewInjectorCoupler(cc.Name, target, cc.WriteOnly)
		byName[cc.Name] = inj
		ordered = append(ordered, inj)
	}
	return ordered, nil
}

func buildCoupler(cc config.CouplerConfig) (coupler.Coupler, error) {
	switch cc.Kind {
	case "serial":
		return coupler.NewSerialCoupler(cc.Name, coupler.SerialConfig{
			Port:        cc.Port,
			Baud:        cc.Baud,
			ReadTimeout: cc.Timeout,
		}), nil
	case "tcp":
		return coupler.NewTCPCoupler(cc.Name, coupler.TCPConfig{
			Addr:          cc.Addr,
			DialTimeout:   cc.DialTimeout,
			RetryInterval: cc.RetryInterval,
		}), nil
	case "udp":
		return coupler.NewUDPCoupler(cc.Name, coupler.UDPConfig{ListenAddr: cc.Addr}), nil
	case "socketcan":
		return coupler.NewSocketCANCoupler(cc.Name, cc.Interface, socketcan.Config{
			BringUpInterface:     cc.BringUpInterface,
			MinInterFrameSpacing: cc.MinInterFrameSpacing,
			ReceiveDataTimeout:   cc.Timeout,
		}), nil
	case "logreplay":
		return coupler.NewLogReplayCoupler(cc.Name, coupler.LogReplayConfig{
			Path:  cc.Path,
			Speed: cc.Speed,
		}), nil
	default:
		return nil, fmt.Errorf("unknown coupler kind %q", cc.Kind)
	}
}

func buildPublisher(pc config.PublisherConfig) (publisher.Publisher, error) {
	switch pc.Kind {
	case "tcpstream":
		return publisher.NewTCPStreamPublisher(pc.Name, publisher.TCPStreamConfig{
			ListenAddr: pc.ListenAddr,
			Format:     parseFormat(pc.Format),
			MaxSilent:  pc.MaxSilent,
			QueueSize:  pc.QueueSize,
			MaxLost:    pc.MaxLost,
		}), nil
	case "rpcpush":
		return publisher.NewRPCPushPublisher(pc.Name, publisher.RPCPushConfig{
			Broker:        pc.Broker,
			Topic:         pc.Topic,
			RetryInterval: pc.RetryInterval,
			Mode:          parseMode(pc.Mode),
			QueueSize:     pc.QueueSize,
			MaxLost:       pc.MaxLost,
		}), nil
	case "trace":
		return publisher.NewTraceWriterPublisher(pc.Name, publisher.TraceConfig{
			Dir:       pc.Dir,
			ToStdout:  pc.ToStdout,
			QueueSize: pc.QueueSize,
			MaxLost:   pc.MaxLost,
		})
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", pc.Kind)
	}
}

func parseFormat(s string) pseudo0183.Format {
	switch s {
	case "dyfmt":
		return pseudo0183.FormatDigitalYacht
	case "stfmt":
		return pseudo0183.FormatStatus
	case "shipmodul":
		return pseudo0183.FormatShipmodul
	default:
		return pseudo0183.FormatTransparent
	}
}

func parseMode(s string) publisher.ConversionMode {
	switch s {
	case "convert_strict":
		return publisher.ConvertStrict
	case "convert_pass":
		return publisher.ConvertPass
	default:
		return publisher.PassThru
	}
}

func buildChain(filters []config.FilterConfig) filter.Chain {
	chain := filter.Chain{}
	for _, fc := range filters {
		action := filter.Select
		if fc.Action == "discard" {
			action = filter.Discard
		}
		f := buildFilter(fc)
		if f == nil {
			continue
		}
		chain.Rules = append(chain.Rules, filter.Rule{Filter: f, Action: action})
		if action == filter.Select {
			chain.FilterSelect = true
		}
	}
	return chain
}

func buildFilter(fc config.FilterConfig) filter.Filter {
	switch {
	case fc.MinPeriod > 0:
		return &filter.TimeFilter{MinPeriod: fc.MinPeriod}
	case len(fc.Talkers) > 0 || len(fc.Formatters) > 0:
		return filter.SentenceFilter{Talkers: fc.Talkers, Formatters: fc.Formatters}
	case len(fc.Sources) > 0 || len(fc.PGNs) > 0 || len(fc.ManufacturerIDs) > 0 || len(fc.ProductNames) > 0:
		return filter.PGNFilter{
			Sources:         fc.Sources,
			PGNs:            fc.PGNs,
			ManufacturerIDs: fc.ManufacturerIDs,
			ProductNames:    fc.ProductNames,
		}
	default:
		return nil
	}
}
