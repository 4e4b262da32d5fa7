package loader

import (
	"errors"
	goplugin "plugin"
)

// Module is an opened artifact.
type Module interface {
	Lookup(symbol string) (any, error)
}

// Opener loads an artifact into the process.
type Opener interface {
	Open(path string) (Module, error)
}

// GoPluginOpener opens artifacts with the standard plugin package.
type GoPluginOpener struct{}

// Open loads the plugin at path. Package init code runs here.
func (GoPluginOpener) Open(path string) (Module, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginModule{so: so}, nil
}

type pluginModule struct {
	so *goplugin.Plugin
}

func (m pluginModule) Lookup(symbol string) (any, error) {
	return m.so.Lookup(symbol)
}
