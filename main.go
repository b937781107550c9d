// Wand caster server.
//
// Responsibilities:
//   - BLE: find the MCW- wand, keep it connected, decode its notifications
//   - Track the wand tip while all four pads are held, classify the trace
//   - WebSocket :8080/ws → stream spells, buttons, battery and the live trace
//   - HTTP :8080/api     → session state and reset
//   - MQTT (optional)    → retained spell/battery/buttons/casting topics

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"wandcaster/ble"
	"wandcaster/config"
	"wandcaster/gesture"
	"wandcaster/hub"
	"wandcaster/motion"
	"wandcaster/publish"
	"wandcaster/session"
)

const defaultConfigPath = "/etc/wandcaster/config.yaml"

func main() {
	app := &cli.App{
		Name:  "wandcaster",
		Usage: "recognize spells cast with a Magic Caster wand",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{"WANDCASTER_CONFIG"},
			},
			&cli.StringFlag{Name: "device", Usage: "wand MAC `ADDRESS` (default: first MCW- device)"},
			&cli.StringFlag{Name: "mode", Usage: "spell detection: wand, template or remote"},
			&cli.StringFlag{Name: "templates", Usage: "template `FILE` (.json or .npz)"},
			&cli.StringFlag{Name: "model-server", Usage: "inference server `URL` for remote mode"},
			&cli.StringFlag{Name: "model", Usage: "spell model `FILE` for remote mode"},
			&cli.StringFlag{Name: "http", Usage: "dashboard listen `ADDR`"},
			&cli.StringFlag{Name: "mqtt", Usage: "MQTT broker `URL`, e.g. tcp://localhost:1883"},
			&cli.StringFlag{Name: "log-level", Usage: "logrus level"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path, !c.IsSet("config") && path == defaultConfigPath)
	if err != nil {
		return cfg, err
	}
	if c.IsSet("device") {
		cfg.Device.ID = c.String("device")
	}
	if c.IsSet("mode") {
		cfg.Detection.Mode = gesture.Mode(c.String("mode"))
	}
	if c.IsSet("templates") {
		cfg.Detection.TemplatesPath = c.String("templates")
	}
	if c.IsSet("model-server") {
		cfg.Detection.RemoteURL = c.String("model-server")
	}
	if c.IsSet("model") {
		cfg.Detection.ModelPath = c.String("model")
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = c.String("http")
	}
	if c.IsSet("mqtt") {
		cfg.MQTT.Broker = c.String("mqtt")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, mode := gesture.Build(ctx, cfg.Detection, log)
	log.WithField("mode", mode).Info("spell detection ready")

	wsHub := hub.New(log)
	pubs := publish.Fanout{wsHub, publish.Logger{Log: log.WithField("component", "publish")}}
	if cfg.MQTT.Broker != "" {
		m, err := publish.NewMQTT(cfg.MQTT, log)
		if err != nil {
			log.WithError(err).Warn("MQTT unavailable, continuing without it")
		} else {
			defer m.Close()
			pubs = append(pubs, m)
		}
	}

	sess := session.New(cfg.SessionConfig(), motion.NewTracker(cfg.Motion), classifier, pubs, log)
	device := &deviceState{}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: newMux(wsHub, sess, device)}
	go func() {
		log.Infof("HTTP/WS server on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP listen failed")
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		wsHub.Close()
	}()

	transport := ble.NewBlueZ(ble.BlueZConfig{ResolveTimeout: cfg.Device.ResolveTimeout}, log)
	scanner := ble.NewScanner(transport, cfg.ScanConfig(), log)
	err = scanner.Run(ctx, func(ctx context.Context, conn ble.Connection) error {
		return serveWand(ctx, conn, cfg, sess, pubs, device, classifier != nil, log)
	})
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

// serveWand runs one connection: subscribe, identify, configure, then
// dispatch events to the session until the link drops.
func serveWand(ctx context.Context, conn ble.Connection, cfg config.Config, sess *session.Session,
	pub session.Publisher, device *deviceState, tracking bool, log logrus.FieldLogger) error {
	link := ble.NewLink(conn, cfg.LinkConfig(), log)
	link.AddSink(sess)
	if err := link.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- link.Run(runCtx) }()

	info, err := link.Identify(ctx)
	if err != nil {
		return err
	}
	device.set(link.Address(), info)
	defer device.clear()
	pub.Publish(session.Message{Kind: session.KindDevice, At: time.Now(), Data: device.get()})

	if err := link.InitButtons(ctx); err != nil {
		log.WithError(err).Warn("button init failed")
	}
	if tracking {
		if err := link.StartIMU(ctx); err != nil {
			log.WithError(err).Warn("IMU start failed, spells cannot be traced")
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = link.StopIMU(stopCtx)
		}()
	}
	sess.SetFeedback(ble.CastFeedback{Link: link, Vibrate: cfg.Session.Vibrate})
	defer sess.SetFeedback(nil)

	go link.RunKeepAlive(runCtx, cfg.Device.KeepAlive)
	return <-done
}

// ─── Device state ─────────────────────────────────────────────────────────────

type deviceInfo struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	ble.DeviceInfo
}

type deviceState struct {
	mu   sync.Mutex
	info deviceInfo
}

func (d *deviceState) set(addr string, info ble.DeviceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = deviceInfo{Connected: true, Address: addr, DeviceInfo: info}
}

func (d *deviceState) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = deviceInfo{}
}

func (d *deviceState) get() deviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// ─── HTTP Handlers ────────────────────────────────────────────────────────────

func newMux(wsHub *hub.Hub, sess *session.Session, device *deviceState) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", wsHub)

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, struct {
			session.State
			Device deviceInfo `json:"device"`
		}{sess.Snapshot(), device.get()})
	})

	mux.HandleFunc("/api/session/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		sess.Reset()
		writeJSON(w, map[string]bool{"ok": true})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
