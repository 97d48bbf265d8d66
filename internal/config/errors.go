package config

import "errors"

// ErrInvalidConfig wraps every Validate failure; the message names the key.
var ErrInvalidConfig = errors.New("pulse config: invalid value")

// ErrLoadConfig wraps failures reading the .env file, the YAML file or the
// environment.
var ErrLoadConfig = errors.New("pulse config: cannot load")
