package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICEMEDIA"

type Config struct {
	IPC       IPCConfig       `mapstructure:"ipc"`
	Transport TransportConfig `mapstructure:"transport"`
	Media     MediaConfig     `mapstructure:"media"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Log       LogConfig       `mapstructure:"log"`
}

type IPCConfig struct {
	Mode        string        `mapstructure:"mode"`
	Addr        string        `mapstructure:"addr"`
	Secret      string        `mapstructure:"secret"`
	Token       string        `mapstructure:"token"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	CommandRate int           `mapstructure:"command_rate"`
}

type TransportConfig struct {
	ALPN               string        `mapstructure:"alpn"`
	ServerName         string        `mapstructure:"server_name"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	CertFingerprint    string        `mapstructure:"cert_fingerprint"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	KeepAlive          time.Duration `mapstructure:"keep_alive"`
	DatagramMTU        uint16        `mapstructure:"datagram_mtu"`
}

type MediaConfig struct {
	CameraFPS         int     `mapstructure:"camera_fps"`
	ScreenFPS         int     `mapstructure:"screen_fps"`
	VoiceBitrate      int     `mapstructure:"voice_bitrate"`
	StreamBitrate     int     `mapstructure:"stream_bitrate"`
	VideoBitrateKbps  int     `mapstructure:"video_bitrate_kbps"`
	ScreenBitrateKbps int     `mapstructure:"screen_bitrate_kbps"`
	SpeakingThreshold float64 `mapstructure:"speaking_threshold"`
}

type CaptureConfig struct {
	MicDevice     string `mapstructure:"mic_device"`
	MonitorDevice string `mapstructure:"monitor_device"`
	Channels      int    `mapstructure:"channels"`
	ParecPath     string `mapstructure:"parec_path"`
	PacatPath     string `mapstructure:"pacat_path"`
	Playback      bool   `mapstructure:"playback"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ipc.mode", "release")
	v.SetDefault("ipc.addr", "127.0.0.1:7710")
	v.SetDefault("ipc.secret", "")
	v.SetDefault("ipc.token", "")
	v.SetDefault("ipc.read_limit", 16<<20)
	v.SetDefault("ipc.ping_period", "54s")
	v.SetDefault("ipc.send_buffer", 64)
	v.SetDefault("ipc.command_rate", 50)

	v.SetDefault("transport.alpn", "voicemedia/1")
	v.SetDefault("transport.insecure_skip_verify", false)
	v.SetDefault("transport.handshake_timeout", "10s")
	v.SetDefault("transport.idle_timeout", "30s")
	v.SetDefault("transport.keep_alive", "5s")
	v.SetDefault("transport.datagram_mtu", 1100)

	v.SetDefault("media.camera_fps", 30)
	v.SetDefault("media.screen_fps", 15)
	v.SetDefault("media.voice_bitrate", 96000)
	v.SetDefault("media.stream_bitrate", 192000)
	v.SetDefault("media.video_bitrate_kbps", 1500)
	v.SetDefault("media.screen_bitrate_kbps", 2500)
	v.SetDefault("media.speaking_threshold", 0.25)

	v.SetDefault("capture.mic_device", "@DEFAULT_SOURCE@")
	v.SetDefault("capture.monitor_device", "@DEFAULT_MONITOR@")
	v.SetDefault("capture.channels", 2)
	v.SetDefault("capture.parec_path", "parec")
	v.SetDefault("capture.pacat_path", "pacat")
	v.SetDefault("capture.playback", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FileName is the config file picked by CONFIG_ENV (dev by default).
func FileName() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

// Loader keeps the viper instance so the file can be watched after Load.
type Loader struct {
	v *viper.Viper
}

func NewLoader(fileName string) *Loader {
	v := newViper()
	v.SetConfigFile(fileName)
	return &Loader{v: v}
}

func Load() (*Config, error) {
	return NewLoader(FileName()).Load()
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", l.v.ConfigFileUsed()).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", l.v.ConfigFileUsed()).Msg("config loaded")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch calls onChange with the re-read config every time the file is
// written. Parse failures keep the previous config.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Error().Str("module", "config").Err(err).Msg("reload failed")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}
