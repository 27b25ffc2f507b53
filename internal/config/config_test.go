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

package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsForLocalDeployment(t *testing.T) {
	opts := Load()

	if opts.ListenAddress != "localhost:3010" {
		t.Errorf("ListenAddress = %q, want %q", opts.ListenAddress, "localhost:3010")
	}
	if len(opts.RedisAddrs) != 1 || opts.RedisAddrs[0] != "localhost:6379" {
		t.Errorf("RedisAddrs = %v, want [localhost:6379]", opts.RedisAddrs)
	}
	if opts.HubSize != 1024 {
		t.Errorf("HubSize = %d, want 1024", opts.HubSize)
	}
	if opts.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", opts.ConnectTimeout)
	}
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_HOST", "redis-a:6379,redis-b:6379")
	t.Setenv("HUB_SIZE", "4096")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	opts := Load()

	if opts.ListenAddress != "localhost:8080" {
		t.Errorf("ListenAddress = %q, want %q", opts.ListenAddress, "localhost:8080")
	}
	want := []string{"redis-a:6379", "redis-b:6379"}
	if len(opts.RedisAddrs) != len(want) {
		t.Fatalf("RedisAddrs = %v, want %v", opts.RedisAddrs, want)
	}
	for i := range want {
		if opts.RedisAddrs[i] != want[i] {
			t.Errorf("RedisAddrs[%d] = %q, want %q", i, opts.RedisAddrs[i], want[i])
		}
	}
	if opts.HubSize != 4096 {
		t.Errorf("HubSize = %d, want 4096", opts.HubSize)
	}
	if opts.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", opts.ShutdownTimeout)
	}
}

func TestLoadPanicsOnMalformedInt(t *testing.T) {
	t.Setenv("HUB_SIZE", "not-a-number")

	defer func() {
		if recover() == nil {
			t.Fatal("expected Load to panic on a malformed HUB_SIZE")
		}
	}()
	Load()
}

func TestLoadPanicsOnMalformedDuration(t *testing.T) {
	t.Setenv("CONNECT_TIMEOUT", "not-a-duration")

	defer func() {
		if recover() == nil {
			t.Fatal("expected Load to panic on a malformed CONNECT_TIMEOUT")
		}
	}()
	Load()
}
