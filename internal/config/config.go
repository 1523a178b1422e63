package config

import (
	"errors"
	"net/netip"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	LogFile   LogFileConfig   `mapstructure:"log_file"`
	Speedwire SpeedwireConfig `mapstructure:"speedwire"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type LogFileConfig struct {
	Path       string
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

type SpeedwireConfig struct {
	Interfaces   []string `mapstructure:"interfaces"`
	SusyID       uint16   `mapstructure:"susy_id"`
	SerialNumber uint32   `mapstructure:"serial_number"`
	UserGroup    string   `mapstructure:"user_group"`
	Password     string

	Devices         []string `mapstructure:"devices"`
	RequiredSerials []uint32 `mapstructure:"required_serials"`
	TagFile         string   `mapstructure:"tag_file"`

	ObisMeasurements     []string `mapstructure:"obis_measurements"`
	InverterMeasurements []string `mapstructure:"inverter_measurements"`

	ObisAveragingMillis       uint32 `mapstructure:"obis_averaging_millis"`
	InverterAveragingMillis   uint32 `mapstructure:"inverter_averaging_millis"`
	QueryIntervalMillis       uint32 `mapstructure:"query_interval_millis"`
	ReceiveTimeoutMillis      uint32 `mapstructure:"receive_timeout_millis"`
	NightQueryIntervalMillis  uint32 `mapstructure:"night_query_interval_millis"`
	NightReceiveTimeoutMillis uint32 `mapstructure:"night_receive_timeout_millis"`
	DiscoveryTimeoutMillis    uint32 `mapstructure:"discovery_timeout_millis"`
	DiscoveryIntervalMinutes  uint32 `mapstructure:"discovery_interval_minutes"`
	WakeupTimeoutMillis       uint32 `mapstructure:"wakeup_timeout_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type InfluxConfig struct {
	Enable        bool
	URL           string `mapstructure:"url"`
	Token         string
	Org           string
	Bucket        string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckDeviceAddresses validates the pre-registered device ip addresses.
func CheckDeviceAddresses(addresses []string) error {
	for _, a := range addresses {
		addr, err := netip.ParseAddr(a)
		if err != nil || !addr.Is4() {
			return errors.New("invalid device address " + a + ". only ipv4 addresses are supported")
		}
	}
	return nil
}

// Validate checks the speedwire section bounds.
func (c SpeedwireConfig) Validate() error {
	if len(c.Password) > 12 {
		return errors.New("speedwire.password can not be longer than 12 characters")
	}
	if c.SusyID == 0 || c.SerialNumber == 0 {
		return errors.New("speedwire.susy_id and speedwire.serial_number must be set")
	}
	if c.QueryIntervalMillis < 1000 {
		return errors.New("speedwire.query_interval_millis must be at least 1000")
	}
	if c.ReceiveTimeoutMillis < 100 || c.ReceiveTimeoutMillis >= c.QueryIntervalMillis {
		return errors.New("speedwire.receive_timeout_millis must be between 100 and query_interval_millis")
	}
	if c.NightQueryIntervalMillis < c.QueryIntervalMillis {
		return errors.New("speedwire.night_query_interval_millis can not be lower than query_interval_millis")
	}
	if c.NightReceiveTimeoutMillis >= c.NightQueryIntervalMillis {
		return errors.New("speedwire.night_receive_timeout_millis must be lower than night_query_interval_millis")
	}
	if c.ObisAveragingMillis < 1000 || c.InverterAveragingMillis < 1000 {
		return errors.New("speedwire averaging windows must be at least 1000 milliseconds")
	}
	if c.DiscoveryIntervalMinutes == 0 {
		return errors.New("speedwire.discovery_interval_minutes must be greater than 0")
	}
	return CheckDeviceAddresses(c.Devices)
}
