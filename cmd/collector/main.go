package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"glacierguard-api/config"
	"glacierguard-api/logger"
	"glacierguard-api/models"
	"glacierguard-api/services"
	"glacierguard-api/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glacierguard_collector_messages_received_total",
		Help: "Total number of MQTT messages received by collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glacierguard_collector_messages_stored_total",
		Help: "Total number of detections persisted from MQTT.",
	})
	msgsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glacierguard_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
	})
)

type detectionCreator interface {
	Create(ctx context.Context, in models.DetectionInput) (models.Detection, error)
}

type collector struct {
	store detectionCreator
	cache *services.CacheService
	log   *zerolog.Logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "glacierguard-collector",
	})
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	defer store.Close(db)

	detections := store.New(db)
	if err := detections.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	cache, err := services.NewCacheService(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, live publishing disabled")
	}
	defer cache.Close()

	c := &collector{store: detections, cache: cache, log: log}

	go serveHTTP(cfg.MQTT.MetricsAddr, detections)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID("glacierguard-collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, message mqtt.Message) {
		_ = c.processMessage(ctx, message.Topic(), message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", cfg.MQTT.Topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("topic", cfg.MQTT.Topic).Msg("collector subscribed")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatal().Err(token.Error()).Str("broker", cfg.MQTT.URL).Msg("mqtt connection failed")
	}

	log.Info().
		Str("mqtt", cfg.MQTT.URL).
		Str("driver", cfg.Database.Driver).
		Str("metrics", cfg.MQTT.MetricsAddr).
		Msg("collector running")

	<-ctx.Done()
	log.Info().Msg("collector shutting down")
	client.Disconnect(250)
}

func serveHTTP(addr string, db interface{ Ping(context.Context) error }) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Get().Info().Str("addr", addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Get().Fatal().Err(err).Msg("metrics server failed")
	}
}

// decodePayload turns an MQTT message body into a store input.
func decodePayload(raw []byte) (models.DetectionInput, error) {
	var p models.DetectionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.DetectionInput{}, fmt.Errorf("invalid payload: %w", err)
	}
	return p.Input()
}

func (c *collector) processMessage(ctx context.Context, topic string, raw []byte) error {
	msgsReceived.Inc()
	log := c.log.With().Str("topic", topic).Str("source", path.Base(topic)).Logger()

	in, err := decodePayload(raw)
	if err != nil {
		msgsFailed.Inc()
		log.Warn().Err(err).Msg("rejected message")
		return err
	}

	d, err := c.store.Create(ctx, in)
	if err != nil {
		msgsFailed.Inc()
		if errors.Is(err, store.ErrValidation) {
			log.Warn().Err(err).Msg("rejected message")
		} else {
			log.Error().Err(err).Msg("store detection failed")
		}
		return err
	}
	msgsStored.Inc()
	log.Debug().Int64("id", d.ID).Str("detection_type", d.DetectionType).Msg("detection stored")

	if err := c.cache.InvalidateList(ctx); err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}
	if err := c.cache.Publish(ctx, services.LiveChannel, d); err != nil {
		log.Warn().Err(err).Int64("id", d.ID).Msg("publish detection failed")
	}
	return nil
}
