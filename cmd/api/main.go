package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/speedwire2mqtt/internal/adapter/actor"
	"github.com/berfenger/speedwire2mqtt/internal/adapter/influx"
	"github.com/berfenger/speedwire2mqtt/internal/adapter/tagdef"
	"github.com/berfenger/speedwire2mqtt/internal/adapter/udp"
	"github.com/berfenger/speedwire2mqtt/internal/adapter/wakeup"
	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/actor"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/internal/server"
	"github.com/berfenger/speedwire2mqtt/internal/util"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	slog.Info("speedwire2mqtt", "version", versioninfo.Short())

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	logger, err := util.NewLogger(*cfg)
	if err != nil {
		slog.Error("logger errors", "error", err)
		return
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	socket := udp.NewSocket(udp.DefaultOptions(cfg.Speedwire.Interfaces), logger)
	deps := actor.SpeedwireDeps{
		Sender:      socket,
		Waker:       wakeup.NewHTTPWaker(time.Duration(cfg.Speedwire.WakeupTimeoutMillis) * time.Millisecond),
		InterfaceIP: socket.InterfaceIP(),
	}
	if tags, err := loadTags(cfg, logger); err != nil {
		logger.Warn("cannot load tag definitions", zap.String("file", cfg.Speedwire.TagFile), zap.Error(err))
	} else if tags != nil {
		deps.Tags = tags
	}

	influxProv, err := influxActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, deps, udpActorProvider(socket, logger), mqttActorProvider(cfg, logger), influxProv, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SPEEDWIRE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SPEEDWIRE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("speedwire")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if util.FileExists(cfgFile) {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err := viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Speedwire.Validate(); err != nil {
		return nil, err
	}
	if _, unknown := domain.FindObisDefinitions(cfg.Speedwire.ObisMeasurements); len(unknown) > 0 {
		return nil, fmt.Errorf("config param speedwire.obis_measurements has unknown measurements: %v", unknown)
	}
	if _, unknown := domain.FindRegisterDefinitions(cfg.Speedwire.InverterMeasurements); len(unknown) > 0 {
		return nil, fmt.Errorf("config param speedwire.inverter_measurements has unknown measurements: %v", unknown)
	}

	return &cfg, nil
}

func loadTags(cfg *config.Config, logger *zap.Logger) (port.TagResolver, error) {
	if cfg.Speedwire.TagFile == "" {
		return nil, nil
	}
	tags, err := tagdef.Load(cfg.Speedwire.TagFile, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("tag definitions loaded", zap.Int("count", tags.Len()))
	return tags, nil
}

func udpActorProvider(socket *udp.Socket, logger *zap.Logger) actor.UDPActorProvider {
	return func(es *eventstream.EventStream) *adactor.UDPActor {
		return adactor.NewUDPActor(socket, es, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func influxActorProvider(cfg *config.Config, logger *zap.Logger) (actor.InfluxActorProvider, error) {
	if !cfg.Influx.Enable {
		return nil, nil
	}
	if err := validateInflux(cfg.Influx); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Influx.TimeoutMillis) * time.Millisecond
	return func(es *eventstream.EventStream) *adactor.InfluxActor {
		// a fresh client per incarnation, the previous one is closed on stop
		writer, err := influx.NewWriter(cfg.Influx)
		if err != nil {
			panic(err)
		}
		return adactor.NewInfluxActor(writer, timeout, es, logger)
	}, nil
}

func validateInflux(cfg config.InfluxConfig) error {
	writer, err := influx.NewWriter(cfg)
	if err != nil {
		return err
	}
	writer.Close()
	return nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("log_file.max_size_mb", 10)
	viper.SetDefault("log_file.max_backups", 3)
	viper.SetDefault("log_file.max_age_days", 28)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "speedwire")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("speedwire.susy_id", 0x7d)
	viper.SetDefault("speedwire.serial_number", 0x3a28be42)
	viper.SetDefault("speedwire.user_group", "user")
	viper.SetDefault("speedwire.password", "0000")
	viper.SetDefault("speedwire.obis_measurements", domain.DefaultObisFilter)
	viper.SetDefault("speedwire.inverter_measurements", domain.DefaultRegisterFilter)
	viper.SetDefault("speedwire.obis_averaging_millis", 60000)
	viper.SetDefault("speedwire.inverter_averaging_millis", 60000)
	viper.SetDefault("speedwire.query_interval_millis", 5000)
	viper.SetDefault("speedwire.receive_timeout_millis", 2000)
	viper.SetDefault("speedwire.night_query_interval_millis", 60000)
	viper.SetDefault("speedwire.night_receive_timeout_millis", 10000)
	viper.SetDefault("speedwire.discovery_timeout_millis", 2000)
	viper.SetDefault("speedwire.discovery_interval_minutes", 60)
	viper.SetDefault("speedwire.wakeup_timeout_millis", 2000)
	viper.SetDefault("influx.enable", false)
	viper.SetDefault("influx.timeout_millis", 5000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Speedwire.Password = "*redacted*"
	cfg.Influx.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
