package util

import (
	"os"

	"github.com/berfenger/speedwire2mqtt/internal/config"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Speedwire: config.SpeedwireConfig{
			SusyID:                    0x7d,
			SerialNumber:              0x3a28be42,
			UserGroup:                 "user",
			Password:                  "0000",
			ObisMeasurements:          []string{"positive_active_power", "negative_active_power", "signed_active_power"},
			InverterMeasurements:      []string{"dc_power_mpp1", "ac_power_l1", "operation_status"},
			ObisAveragingMillis:       60000,
			InverterAveragingMillis:   60000,
			QueryIntervalMillis:       30000,
			ReceiveTimeoutMillis:      2000,
			NightQueryIntervalMillis:  300000,
			NightReceiveTimeoutMillis: 10000,
			DiscoveryTimeoutMillis:    2000,
			DiscoveryIntervalMinutes:  60,
			WakeupTimeoutMillis:       2000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "speedwire",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

// NewLogger builds the production logger, optionally teeing into a rotated log file.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	if cfg.LogFile.Path == "" {
		return logger, nil
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile.Path,
		MaxSize:    cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAge:     cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zapConfig.EncoderConfig), writer, zapConfig.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// FileExists reports whether path names a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
