// Command devsim is a test-harness CLI (spec §6, informative) that wires
// the simulator's components together: it loads one or more Intel-HEX
// firmware images, runs them against the shared Medium/Scheduler, and
// hands uplinks to a Universal Gateway and LNS the way a real network
// operator's infrastructure would.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agsys/lorasim/internal/config"
	"github.com/agsys/lorasim/internal/gateway"
	"github.com/agsys/lorasim/internal/inspect"
	"github.com/agsys/lorasim/internal/lns"
	"github.com/agsys/lorasim/internal/lorawancodec"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/region"
	"github.com/agsys/lorasim/internal/store"
)

var (
	configFile  string
	virtualTime bool

	rootCmd = &cobra.Command{
		Use:   "devsim",
		Short: "LoRaWAN end-device simulator",
		Long:  "Deterministic LoRaWAN end-device simulator: runs firmware images against a simulated radio Medium, Universal Gateway, and LNS.",
	}

	runCmd = &cobra.Command{
		Use:   "run [hexfiles...]",
		Short: "Run one or more firmware images",
		RunE:  runDevices,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("devsim v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	runCmd.Flags().BoolVar(&virtualTime, "virtual-time", false, "Fast-forward the clock to each scheduled event instead of pacing in real time")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfigOrDefault() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

// resolveHexFiles prefers positional arguments, falling back to the
// TEST_HEXFILES environment variable (a shell-quoted-looking, simple
// space-separated list) and then the config file, per spec §6.
func resolveHexFiles(args []string, cfg *config.Config) []string {
	if len(args) > 0 {
		return args
	}
	if env := os.Getenv("TEST_HEXFILES"); env != "" {
		return strings.Fields(env)
	}
	return cfg.Device.HexFiles
}

func regionByName(name string) (*region.Region, error) {
	switch name {
	case "", "EU868":
		return region.NewEU868(), nil
	case "US915":
		return region.NewUS915(), nil
	default:
		return nil, fmt.Errorf("devsim: unknown region %q", name)
	}
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return fmt.Errorf("devsim: load config: %w", err)
	}

	hexFiles := resolveHexFiles(args, cfg)
	if len(hexFiles) == 0 {
		return fmt.Errorf("devsim: no firmware images given (positional args, TEST_HEXFILES, or config device.hex_files)")
	}

	reg, err := regionByName(cfg.Simulation.Region)
	if err != nil {
		return err
	}

	worldCtx := newWorldContext()
	gw := gateway.New(worldCtx.sched, worldCtx.med, worldCtx.clk, reg)
	network := lns.New(cfg.Network.NetID)
	for _, p := range cfg.Provision {
		network.Provision(p.DevEUI, lorawancodec.Key(p.NwkKey))
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("devsim: open store: %w", err)
	}
	defer db.Close()

	sessions, err := db.LoadSessions()
	if err != nil {
		return fmt.Errorf("devsim: load persisted sessions: %w", err)
	}
	for _, s := range sessions {
		network.Sessions().Add(s)
	}

	sim := NewSimulation(worldCtx)
	for i, path := range hexFiles {
		name := fmt.Sprintf("dev%d:%s", i, path)
		dev, err := NewDevice(name, worldCtx, []string{path})
		if err != nil {
			return err
		}
		sim.AddDevice(dev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	group, gctx := errgroup.WithContext(ctx)

	var hub *inspect.Hub
	var httpSrv *http.Server
	if cfg.Inspect.Enabled {
		hub = inspect.NewHub(64)
		gw.Hub = hub
		mux := http.NewServeMux()
		mux.Handle("/", hub)
		httpSrv = &http.Server{Addr: cfg.Inspect.ListenAddr, Handler: mux}
		group.Go(func() error {
			log.Printf("devsim: inspect feed listening on %s", cfg.Inspect.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("devsim: inspect server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return consumeUplinks(gctx, worldCtx, gw, network, reg, db, hub)
	})

	group.Go(func() error {
		defer close(stop)
		return sim.Run(gctx.Done(), virtualTime, realTimePacer)
	})

	group.Go(func() error {
		select {
		case sig := <-sigChan:
			log.Printf("devsim: received signal %v, shutting down", sig)
		case <-gctx.Done():
		}
		cancel()
		if httpSrv != nil {
			httpSrv.Close()
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Println("devsim: shutdown complete")
	return nil
}

// realTimePacer sleeps for the wall-clock duration corresponding to ticks,
// used when --virtual-time is not set.
func realTimePacer(ticks int64) {
	time.Sleep(time.Duration(ticks) * time.Second / clockTicksPerSec)
}

const clockTicksPerSec = 32768

// mtype values from the MHDR's top 3 bits, per the LoRaWAN frame format
// spec §6 treats lorawancodec as an external collaborator for.
const (
	mtypeJoinRequest   = 0x00
	mtypeUnconfirmedUp = 0x02
	mtypeConfirmedUp   = 0x04
)

// consumeUplinks drains the Gateway's uplink queue, hands each frame to the
// LNS for Join or data-frame handling, schedules the Join-Accept downlink
// for a Join, and persists session state, per spec §4.I/§4.J's
// producer/consumer split.
func consumeUplinks(ctx context.Context, worldCtx *worldContext, gw *gateway.Gateway, network *lns.LNS, reg *region.Region, db *store.DB, hub *inspect.Hub) error {
	for {
		msg, err := gw.NextUp(ctx)
		if err != nil {
			return nil
		}

		pdu := msg.Msg.Pdu
		if len(pdu) == 0 {
			continue
		}
		mtype := pdu[0] >> 5

		switch mtype {
		case mtypeJoinRequest:
			handleJoin(worldCtx, gw, network, reg, msg, db, hub)
		case mtypeUnconfirmedUp, mtypeConfirmedUp:
			handleUplink(network, msg, db, hub)
		default:
			log.Printf("devsim: ignoring uplink with unsupported mtype %d", mtype)
		}
	}
}

// scheduleDownlink arms a Join-Accept or data-frame downlink to go out at
// xendTicks + delaySec, via the shared Scheduler, per spec §4.J's
// RX1Delay/RX2 timing.
func scheduleDownlink(worldCtx *worldContext, gw *gateway.Gateway, pdu []byte, freq uint32, reg *region.Region, dr int, xendTicks int64, delaySec float64) {
	at := xendTicks + worldCtx.clk.Sec2Ticks(delaySec)
	worldCtx.sched.Schedule(at, func() {
		rps := reg.Rps(dr, 1, true, false)
		dn := medium.NewLoraMsg(worldCtx.clk, medium.Tick(at), pdu, freq, rps, 14, 8, medium.DefaultDro(rps.Sf(), rps.Bw()), nil)
		if err := gw.SchedDn(dn); err != nil {
			log.Printf("devsim: schedule downlink: %v", err)
		}
	})
}

func handleJoin(worldCtx *worldContext, gw *gateway.Gateway, network *lns.LNS, reg *region.Region, msg *gateway.LoraWanMsg, db *store.DB, hub *inspect.Hub) {
	result, err := network.Join(msg.Msg.Pdu, reg, byte(lns.JaccRxDelay1), 0, reg.RX2DR, reg.RX2Freq)
	if err != nil {
		log.Printf("devsim: join rejected: %v", err)
		if hub != nil {
			hub.Publish(inspect.EventJoinRejected, map[string]string{"reason": err.Error()})
		}
		return
	}

	log.Printf("devsim: join accepted, devaddr=%#08x", result.Session.DevAddr)
	if hub != nil {
		hub.Publish(inspect.EventJoinAccepted, map[string]any{
			"dev_addr": result.Session.DevAddr,
		})
	}
	if err := db.SaveSession(result.Session); err != nil {
		log.Printf("devsim: persist session: %v", err)
	}

	freq, dr := lns.JoinAcceptDnParams(reg, msg.Ch, msg.DR, false)
	scheduleDownlink(worldCtx, gw, result.PDU, freq, reg, dr, int64(msg.Msg.Xend), lns.JaccRxDelay1)
}

func handleUplink(network *lns.LNS, msg *gateway.LoraWanMsg, db *store.DB, hub *inspect.Hub) {
	if len(msg.Msg.Pdu) < 5 {
		return
	}
	devaddr := uint32(msg.Msg.Pdu[1]) | uint32(msg.Msg.Pdu[2])<<8 | uint32(msg.Msg.Pdu[3])<<16 | uint32(msg.Msg.Pdu[4])<<24

	sess, df, err := network.TryUnpack(msg.Msg.Pdu, devaddr)
	if err != nil {
		log.Printf("devsim: uplink from devaddr %#08x rejected: %v", devaddr, err)
		return
	}

	log.Printf("devsim: uplink from devaddr %#08x fcnt=%d fport=%d len=%d", devaddr, df.FCnt, df.FPort, len(df.Payload))
	if hub != nil {
		hub.Publish(inspect.EventUplinkDecoded, map[string]any{
			"dev_addr": devaddr,
			"fcnt":     df.FCnt,
			"fport":    df.FPort,
			"rssi":     msg.Msg.Rssi,
			"snr":      msg.Msg.Snr,
		})
	}
	if err := db.SaveSession(sess); err != nil {
		log.Printf("devsim: persist session: %v", err)
	}
}
