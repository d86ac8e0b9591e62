package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sfcoop/gomstp/pkg/apdu"
	"github.com/sfcoop/gomstp/pkg/binding"
	"github.com/sfcoop/gomstp/pkg/config"
	"github.com/sfcoop/gomstp/pkg/dispatch"
	"github.com/sfcoop/gomstp/pkg/mstp"
	"github.com/sfcoop/gomstp/pkg/node"
	"github.com/sfcoop/gomstp/pkg/tsm"
	"github.com/sfcoop/gomstp/pkg/transport"

	_ "github.com/sfcoop/gomstp/pkg/transport/serialport"
	_ "github.com/sfcoop/gomstp/pkg/transport/virtual"
)

var defaultStation = 0x20
var defaultDriver = "virtual"

func main() {
	log.SetLevel(log.DebugLevel)

	driverName := flag.String("i", defaultDriver, "transport driver: serial, virtual")
	channel := flag.String("d", "/dev/ttyUSB0", "serial device path, ignored for the virtual driver")
	station := flag.Int("n", defaultStation, "this station's MAC address, 0-127")
	auto := flag.Bool("auto", false, "acquire a MAC address with zero-config (§4.6), taking -n clamped to 64-127 as the first candidate")
	cfgPath := flag.String("c", "", "tunables INI file, falls back to the embedded spec defaults")
	redisAddr := flag.String("redis", "", "optional Redis address for the binding cache store")
	flag.Parse()

	tunables := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Printf("could not load tunables from %v : %v\n", *cfgPath, err)
			os.Exit(1)
		}
		tunables = loaded
	}

	driver, err := transport.New(*driverName, *channel)
	if err != nil {
		fmt.Printf("could not open transport %v : %v\n", *driverName, err)
		os.Exit(1)
	}

	thisStation := byte(*station)
	if *auto {
		thisStation = mstp.Unbound
	}
	port := mstp.NewPort(thisStation, tunables, mstp.MaxClassicDataLength)
	port.SilenceMs = driver.SilenceMs
	port.SilenceReset = driver.SilenceReset

	bindings := binding.New()
	if *redisAddr != "" {
		store, err := binding.NewRedisStore(*redisAddr, "", 0, "gomstp:bindings")
		if err != nil {
			fmt.Printf("could not connect to redis at %v : %v\n", *redisAddr, err)
			os.Exit(1)
		}
		defer store.Close()
		bindings.Store = store
	}

	transactions := tsm.New(tunables.TReplyTimeout, 2)

	dispatcher := dispatch.New()
	dispatcher.RegisterUnconfirmed(0x00, func(body []byte) error {
		log.WithField("len", len(body)).Debug("i-am received")
		return nil
	})
	dispatcher.RegisterConfirmed(0x0C, func(invokeID byte, body []byte) (ack []byte, err error) {
		if len(body) == 0 {
			return nil, dispatch.ErrMissingRequiredParameter
		}
		return nil, nil
	})

	var master *mstp.Master
	wireMaster := func(p *mstp.Port) *mstp.Master {
		m := mstp.NewMaster(p)
		m.Transmit = driver.Send
		m.Deliver = func(f mstp.Frame, expectingReply bool) {
			outcome, reply := dispatcher.Dispatch(f.Data)
			if !reply {
				return
			}
			encodeAndQueue(m, f.Source, outcome)
		}
		return m
	}
	transactions.Retransmit = func(invokeID, destination byte, apduBytes []byte) {
		if master != nil {
			master.Queue(mstp.OutboundPDU{Type: mstp.FrameTypeBACnetDataExpectingReply, Destination: destination, Data: apduBytes})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *auto {
		zc := mstp.NewZeroConfig(port, byte(*station))
		zc.Transmit = driver.Send
		runZeroConfig(ctx, zc, driver)
		master = wireMaster(zc.Port)
	} else {
		master = wireMaster(port)
	}

	ctrl := node.New(driver, port, master, transactions)
	ctrl.Start(ctx)
	<-ctx.Done()
	ctrl.Stop()
	ctrl.Wait()
}

// runZeroConfig drives the zero-config FSM to completion before handing
// the now-bound Port to the master FSM; it shares the demonstrator's
// single driver rather than the scheduler's own goroutine since it runs
// once, at startup, per §4.6.
func runZeroConfig(ctx context.Context, zc *mstp.ZeroConfig, driver transport.Driver) {
	const tickMs = 2
	for !zc.Done() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for {
			octet, available := driver.Read()
			if !available {
				break
			}
			zc.Port.HandleOctet(octet, driver.ReceiveErrorFlag())
		}
		zc.Port.Tick()
		zc.Tick(tickMs)
	}
	log.WithField("station", zc.Port.ThisStation).Info("zero-config acquired a station address")
}

// encodeAndQueue turns a dispatch.Outcome into an outbound confirmed-
// service reply and hands it to the master FSM's queue. It is a thin
// demonstration of the wiring a real application-layer service handler
// would perform; encoding the service-specific ack/error/reject/abort
// body beyond the fixed APDU header is outside this module's scope (§1).
func encodeAndQueue(master *mstp.Master, dest byte, outcome dispatch.Outcome) {
	buf := make([]byte, 8)
	h := apdu.Header{Type: outcome.Type, InvokeID: outcome.InvokeID}
	n, err := apdu.EncodeHeader(buf, h)
	if err != nil {
		return
	}
	master.Queue(mstp.OutboundPDU{
		Type:        mstp.FrameTypeBACnetDataNotExpectingReply,
		Destination: dest,
		Data:        buf[:n],
	})
}
