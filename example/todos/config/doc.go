// Package config provides the database and observability configuration of the todos example.
package config
