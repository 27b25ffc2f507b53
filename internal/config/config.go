// Golang port of Overleaf
// Copyright (C) 2021-2024 Jakob Ackermann <das7pad@outlook.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config reads cmd/collabdocd's process configuration from the
// environment, following the document-updater service's getXFromEnv /
// panic-on-malformed-required-value convention.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getStringFromEnv(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func getIntFromEnv(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		panic("malformed " + key + ": " + err.Error())
	}
	return parsed
}

func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		panic("malformed " + key + ": " + err.Error())
	}
	return parsed
}

// Options is the full set of env-var driven knobs cmd/collabdocd needs.
type Options struct {
	ListenAddress string

	RedisAddrs    []string
	RedisPassword string

	PostgresDSN string

	MongoURI string
	MongoDB  string

	HubSize         int
	ConnectTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads Options from the environment, falling back to defaults that
// work for a single-node local deployment.
func Load() *Options {
	port := getIntFromEnv("PORT", 3010)
	mongoHost := getStringFromEnv("MONGO_HOST", "localhost")

	return &Options{
		ListenAddress: getStringFromEnv("LISTEN_ADDRESS", "localhost") +
			":" + strconv.FormatInt(port, 10),

		RedisAddrs: strings.Split(
			getStringFromEnv("REDIS_HOST", "localhost:6379"), ",",
		),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PostgresDSN: getStringFromEnv(
			"POSTGRES_DSN",
			"postgres://localhost:5432/collabdoc?sslmode=disable",
		),

		MongoURI: getStringFromEnv(
			"MONGO_CONNECTION_STRING", "mongodb://"+mongoHost+"/collabdoc",
		),
		MongoDB: getStringFromEnv("MONGO_DB_NAME", "collabdoc"),

		HubSize:         int(getIntFromEnv("HUB_SIZE", 1024)),
		ConnectTimeout:  getDurationFromEnv("CONNECT_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationFromEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}
