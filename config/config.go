package config

// Values bound to command line flags.
var (
	ConfigFile string
	DataDir    string
	LogLevel   string
	LogConsole bool
	AssumeYes  bool
	JSONOutput bool

	From       string
	Owner      string
	Modules    []string
	Label      string
	Guardian   string
	Salt       string
	RandomSalt bool
	Amount     string
	Source     string
	Name       string
	RootName   string

	NoGuardianStorage bool
	MetricsTextfile   string
	MQTTBroker        string
)
