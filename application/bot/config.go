package bot

import (
	"time"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
)

// A Config contains the verification bot's settings: the confirmation
// window and poll cadence, the path of the outcome journal (empty
// disables journaling), and the named UNIX socket the messaging client
// forwards event envelopes through. These values are specified in a
// configuration file, which is read at initialization time.
type Config struct {
	*application.CommonConfig
	ConfirmationWindow string `toml:"confirmation_window"`
	PollInterval       string `toml:"poll_interval"`
	JournalPath        string `toml:"journal_path,omitempty"`
	EventSocket        string `toml:"event_socket"`
}

var _ application.AppConfig = (*Config)(nil)

// NewConfig initializes a new verification bot configuration with the
// given settings.
func NewConfig(file, encoding string, window, poll time.Duration,
	journalPath, eventSocket string, logConf *application.LoggerConfig) *Config {
	return &Config{
		CommonConfig:       application.NewCommonConfig(file, encoding, logConf),
		ConfirmationWindow: window.String(),
		PollInterval:       poll.String(),
		JournalPath:        journalPath,
		EventSocket:        eventSocket,
	}
}

// Load initializes a verification bot configuration from the
// corresponding config file.
func (conf *Config) Load(file, encoding string) error {
	conf.CommonConfig = application.NewCommonConfig(file, encoding, nil)
	return conf.GetLoader().Decode(conf)
}

// Save writes a verification bot configuration to its config file.
func (conf *Config) Save() error {
	return conf.GetLoader().Encode(conf)
}

// GetPath returns the path of the config file.
func (conf *Config) GetPath() string {
	return conf.Path
}

// Window returns the configured confirmation window, falling back to
// the protocol default when unset or unparsable.
func (conf *Config) Window() time.Duration {
	if d, err := time.ParseDuration(conf.ConfirmationWindow); err == nil && d > 0 {
		return d
	}
	return protocol.DefaultConfirmationWindow
}

// Poll returns the configured poll interval, falling back to the
// protocol default when unset or unparsable.
func (conf *Config) Poll() time.Duration {
	if d, err := time.ParseDuration(conf.PollInterval); err == nil && d > 0 {
		return d
	}
	return protocol.DefaultPollInterval
}
