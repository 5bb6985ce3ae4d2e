// Package config loads the inteld configuration through viper. Values come
// from built-in defaults, an optional YAML or JSON file and INTELREG_*
// environment variables, in increasing order of precedence.
package config
