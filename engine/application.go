package engine

import "github.com/spaghettifunk/anima-renderer/engine/config"

// ApplicationConfig overrides the config file. Zero values keep what the file says.
type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel string
	// ConfigPath defaults to config.DefaultPath.
	ConfigPath string
}

func (a *ApplicationConfig) apply(cfg *config.Config) {
	if a == nil {
		return
	}
	if a.StartPosX != 0 {
		cfg.Application.X = a.StartPosX
	}
	if a.StartPosY != 0 {
		cfg.Application.Y = a.StartPosY
	}
	if a.StartWidth != 0 {
		cfg.Application.Width = a.StartWidth
	}
	if a.StartHeight != 0 {
		cfg.Application.Height = a.StartHeight
	}
	if a.Name != "" {
		cfg.Application.Name = a.Name
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
}

func (a *ApplicationConfig) configPath() string {
	if a == nil || a.ConfigPath == "" {
		return config.DefaultPath
	}
	return a.ConfigPath
}
