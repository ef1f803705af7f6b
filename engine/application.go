package engine

type ApplicationConfig struct {
	// The application name handed to the native instance.
	Name string
	// TOML recorder configuration. Empty uses the defaults and disables
	// hot reload.
	ConfigPath string
}
