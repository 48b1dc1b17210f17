package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConditionsConfig defines where the conditions are written
type ConditionsConfig struct {
	Path string
}

// MunkiConfig defines where Munki keeps its client state
type MunkiConfig struct {
	ManifestsPath string   `yaml:"manifests_path"`
	PrefsPaths    []string `yaml:"prefs_paths"`
}

// ExecConfig defines configs related to running OS tools
type ExecConfig struct {
	Timeout time.Duration
}

// LoggingConfig defines configs related to logging
type LoggingConfig struct {
	Debug   bool
	LogFile string `yaml:"log_file"`
}

// ADConfig defines configs for the ad-status reporter
type ADConfig struct {
	Forest                 string
	Domain                 string
	TestsMaxTries          int           `yaml:"tests_max_tries"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	DependentProfiles      []string      `yaml:"dependent_profiles"`
	NTPServer              string        `yaml:"ntp_server"`
	FailuresHistoryPath    string        `yaml:"failures_history_path"`
	LookupAttempts         int           `yaml:"lookup_attempts"`
	RetryInterval          time.Duration `yaml:"retry_interval"`
	RemediationPause       time.Duration `yaml:"remediation_pause"`
}

// AdminGroupsConfig defines configs for the admin-groups reporter
type AdminGroupsConfig struct {
	SearchNode string `yaml:"search_node"`
}

// HWBundleConfig defines configs for the hw-bundle reporter
type HWBundleConfig struct {
	MinDate string `yaml:"min_date"`
}

// NetworkConfig defines configs for the network-hw reporter
type NetworkConfig struct {
	InterfaceTypes []string `yaml:"interface_types"`
}

// MunkiConditionsConfig stores the application configuration. Each
// subcontext is broken down into its own struct.
type MunkiConditionsConfig struct {
	Conditions  ConditionsConfig
	Munki       MunkiConfig
	Exec        ExecConfig
	Logging     LoggingConfig
	AD          ADConfig          `yaml:"ad"`
	AdminGroups AdminGroupsConfig `yaml:"admin_groups"`
	HWBundle    HWBundleConfig    `yaml:"hw_bundle"`
	Network     NetworkConfig
}

// HWBundleMinDate parses hw_bundle.min_date.
func (c MunkiConditionsConfig) HWBundleMinDate() (time.Time, error) {
	d, err := time.Parse("2006-01-02", c.HWBundle.MinDate)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "hw_bundle.min_date must be YYYY-MM-DD")
	}
	return d, nil
}

// addConfigs adds the configuration keys and default values that will be
// filled into the MunkiConditionsConfig struct
func (man Manager) addConfigs() {
	man.addConfigString("conditions.path", constant.ConditionalItemsPath,
		"Path of the ConditionalItems.plist Munki reads")

	man.addConfigString("munki.manifests_path", constant.ManifestsPath,
		"Directory of the manifests cached by managedsoftwareupdate")
	man.addConfigStringSlice("munki.prefs_paths", constant.ManagedInstallsPrefsPaths,
		"ManagedInstalls.plist locations, highest priority first")

	man.addConfigDuration("exec.timeout", constant.DefaultExecTimeout,
		"Timeout for each OS tool invocation")

	man.addConfigBool("logging.debug", false,
		"Enable debug logging")
	man.addConfigString("logging.log_file", "",
		"Also log to this file, rotated by size")

	// ad-status
	man.addConfigString("ad.forest", "example.org",
		"Active Directory forest the Mac should be bound to")
	man.addConfigString("ad.domain", "domain.example.org",
		"Active Directory domain the Mac should be bound to")
	man.addConfigInt("ad.tests_max_tries", 2,
		"Rounds of directory tests and repairs per run")
	man.addConfigInt("ad.max_consecutive_failures", 2,
		"Consecutive failed runs before the binding profiles are removed")
	man.addConfigStringSlice("ad.dependent_profiles", []string{
		"org.sample.config.profile.active-directory",
		"org.sample.config.profile.8021X",
	}, "Profile identifiers removed once the failure threshold is reached")
	man.addConfigString("ad.ntp_server", "ntp.example.org",
		"NTP server used to correct clock skew")
	man.addConfigString("ad.failures_history_path", constant.ADFailuresHistoryPath,
		"Path of the consecutive failure history")
	man.addConfigInt("ad.lookup_attempts", 5,
		"Attempts for the DNS SRV and computer record lookups")
	man.addConfigDuration("ad.retry_interval", 5*time.Second,
		"Pause between DNS SRV and computer record lookup attempts")
	man.addConfigDuration("ad.remediation_pause", 5*time.Second,
		"Pause after each repair step")

	// admin-groups
	man.addConfigString("admin_groups.search_node", "/Active Directory/YOURDOMAIN/All Domains",
		"Directory node used to resolve group names")

	// hw-bundle
	man.addConfigString("hw_bundle.min_date", "2013-10-23",
		"Earliest manufacture date eligible for the app bundle (YYYY-MM-DD)")

	// network-hw
	man.addConfigStringSlice("network.interface_types", []string{"ethernet", "airport", "wi-fi"},
		"system_profiler interface types to report")
}

// LoadConfig will load the config variables into a fully initialized
// MunkiConditionsConfig struct
func (man Manager) LoadConfig() (MunkiConditionsConfig, error) {
	if err := man.loadConfigFile(); err != nil {
		return MunkiConditionsConfig{}, err
	}

	return MunkiConditionsConfig{
		Conditions: ConditionsConfig{
			Path: man.getConfigString("conditions.path"),
		},
		Munki: MunkiConfig{
			ManifestsPath: man.getConfigString("munki.manifests_path"),
			PrefsPaths:    man.getConfigStringSlice("munki.prefs_paths"),
		},
		Exec: ExecConfig{
			Timeout: man.getConfigDuration("exec.timeout"),
		},
		Logging: LoggingConfig{
			Debug:   man.getConfigBool("logging.debug"),
			LogFile: man.getConfigString("logging.log_file"),
		},
		AD: ADConfig{
			Forest:                 man.getConfigString("ad.forest"),
			Domain:                 man.getConfigString("ad.domain"),
			TestsMaxTries:          man.getConfigInt("ad.tests_max_tries"),
			MaxConsecutiveFailures: man.getConfigInt("ad.max_consecutive_failures"),
			DependentProfiles:      man.getConfigStringSlice("ad.dependent_profiles"),
			NTPServer:              man.getConfigString("ad.ntp_server"),
			FailuresHistoryPath:    man.getConfigString("ad.failures_history_path"),
			LookupAttempts:         man.getConfigInt("ad.lookup_attempts"),
			RetryInterval:          man.getConfigDuration("ad.retry_interval"),
			RemediationPause:       man.getConfigDuration("ad.remediation_pause"),
		},
		AdminGroups: AdminGroupsConfig{
			SearchNode: man.getConfigString("admin_groups.search_node"),
		},
		HWBundle: HWBundleConfig{
			MinDate: man.getConfigString("hw_bundle.min_date"),
		},
		Network: NetworkConfig{
			InterfaceTypes: man.getConfigStringSlice("network.interface_types"),
		},
	}, nil
}

// IsSet determines whether a given config key has been explicitly set by any
// of the configuration sources. If false, the default value is being used.
func (man Manager) IsSet(key string) bool {
	return man.viper.IsSet(key)
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name
func envNameFromConfigKey(key string) string {
	return constant.EnvPrefix + "_" + strings.ToUpper(strings.Replace(key, ".", "_", -1))
}

// flagNameFromConfigKey converts a config key into the corresponding flag name
func flagNameFromConfigKey(key string) string {
	return strings.Replace(key, ".", "_", -1)
}

// Manager manages the addition and retrieval of config values. It's only
// public API method is LoadConfig, which will return the populated
// MunkiConditionsConfig struct.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]interface{}
}

// NewManager initializes a Manager wrapping the provided cobra
// command. All config flags will be attached to that command (and inherited by
// the subcommands). Typically this should be called just once, with the root
// command.
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]interface{}{},
	}
	man.addConfigs()
	return man
}

// addDefault will check for duplication, then add a default value to the
// defaults map
func (man Manager) addDefault(key string, defVal interface{}) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}

	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// getInterfaceVal is a helper function used by the getConfig* functions to
// retrieve the config value as interface{}, which will then be cast to the
// appropriate type by the getConfig* function.
func (man Manager) getInterfaceVal(key string) interface{} {
	interfaceVal := man.viper.Get(key)
	if interfaceVal == nil {
		var ok bool
		interfaceVal, ok = man.defaults[key]
		if !ok {
			panic("Tried to look up default value for nonexistent config option: " + key)
		}
	}
	return interfaceVal
}

func (man Manager) bind(key string) {
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))
}

// addConfigString adds a string config to the config options
func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigString retrieves a string from the loaded config
func (man Manager) getConfigString(key string) string {
	interfaceVal := man.getInterfaceVal(key)
	stringVal, err := cast.ToStringE(interfaceVal)
	if err != nil {
		panic("Unable to cast to string for key " + key + ": " + err.Error())
	}

	return stringVal
}

// addConfigStringSlice adds a string list config to the config options.
// Environment values are comma separated.
func (man Manager) addConfigStringSlice(key string, defVal []string, usage string) {
	man.command.PersistentFlags().StringSlice(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigStringSlice retrieves a string list from the loaded config
func (man Manager) getConfigStringSlice(key string) []string {
	interfaceVal := man.getInterfaceVal(key)
	if s, ok := interfaceVal.(string); ok {
		var vals []string
		for _, v := range strings.Split(s, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		return vals
	}
	sliceVal, err := cast.ToStringSliceE(interfaceVal)
	if err != nil {
		panic("Unable to cast to string slice for key " + key + ": " + err.Error())
	}

	return sliceVal
}

// addConfigInt adds a int config to the config options
func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigInt retrieves a int from the loaded config
func (man Manager) getConfigInt(key string) int {
	interfaceVal := man.getInterfaceVal(key)
	intVal, err := cast.ToIntE(interfaceVal)
	if err != nil {
		panic("Unable to cast to int for key " + key + ": " + err.Error())
	}

	return intVal
}

// addConfigBool adds a bool config to the config options
func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigBool retrieves a bool from the loaded config
func (man Manager) getConfigBool(key string) bool {
	interfaceVal := man.getInterfaceVal(key)
	boolVal, err := cast.ToBoolE(interfaceVal)
	if err != nil {
		panic("Unable to cast to bool for key " + key + ": " + err.Error())
	}

	return boolVal
}

// addConfigDuration adds a duration config to the config options
func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigDuration retrieves a duration from the loaded config
func (man Manager) getConfigDuration(key string) time.Duration {
	interfaceVal := man.getInterfaceVal(key)
	durationVal, err := cast.ToDurationE(interfaceVal)
	if err != nil {
		panic("Unable to cast to duration for key " + key + ": " + err.Error())
	}

	return durationVal
}

// loadConfigFile handles the loading of the config file. Munki captures
// stdout of condition scripts, so nothing is printed there.
func (man Manager) loadConfigFile() error {
	man.viper.SetConfigType("yaml")

	flag := man.command.PersistentFlags().Lookup("config")
	if flag == nil || flag.Value.String() == "" {
		// No config file set, only use configs from env
		// vars/flags/defaults
		return nil
	}

	man.viper.SetConfigFile(flag.Value.String())
	if err := man.viper.ReadInConfig(); err != nil {
		return errors.Wrap(err, "loading config file")
	}

	fmt.Fprintln(os.Stderr, "Using config file:", man.viper.ConfigFileUsed())
	return nil
}

// TestConfig returns a configuration with the stock defaults, suitable for
// use in tests.
func TestConfig() MunkiConditionsConfig {
	return MunkiConditionsConfig{
		Conditions: ConditionsConfig{Path: constant.ConditionalItemsPath},
		Munki: MunkiConfig{
			ManifestsPath: constant.ManifestsPath,
			PrefsPaths:    constant.ManagedInstallsPrefsPaths,
		},
		Exec: ExecConfig{Timeout: constant.DefaultExecTimeout},
		AD: ADConfig{
			Forest:                 "example.org",
			Domain:                 "domain.example.org",
			TestsMaxTries:          2,
			MaxConsecutiveFailures: 2,
			DependentProfiles: []string{
				"org.sample.config.profile.active-directory",
				"org.sample.config.profile.8021X",
			},
			NTPServer:           "ntp.example.org",
			FailuresHistoryPath: constant.ADFailuresHistoryPath,
			LookupAttempts:      5,
			RetryInterval:       5 * time.Second,
			RemediationPause:    5 * time.Second,
		},
		AdminGroups: AdminGroupsConfig{SearchNode: "/Active Directory/YOURDOMAIN/All Domains"},
		HWBundle:    HWBundleConfig{MinDate: "2013-10-23"},
		Network:     NetworkConfig{InterfaceTypes: []string{"ethernet", "airport", "wi-fi"}},
	}
}
