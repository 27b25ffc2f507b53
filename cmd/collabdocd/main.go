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

package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/collabtext/editor-core/internal/config"
	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/pendingOperation"
	"github.com/collabtext/editor-core/pkg/session"
	"github.com/collabtext/editor-core/pkg/store"
	"github.com/collabtext/editor-core/pkg/store/mongostore"
	"github.com/collabtext/editor-core/pkg/store/pgstore"
)

func mustConnectRedis(o *config.Options) redis.UniversalClient {
	ctx, done := context.WithTimeout(context.Background(), o.ConnectTimeout)
	defer done()
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    o.RedisAddrs,
		Password: o.RedisPassword,
	})
	if err := client.Set(ctx, "startup", "42", time.Second).Err(); err != nil {
		panic(errors.Tag(err, "cannot talk to redis"))
	}
	return client
}

func mustConnectPostgres(o *config.Options) *pgstore.DB {
	db, err := pgstore.Connect(context.Background(), o.PostgresDSN)
	if err != nil {
		panic(errors.Tag(err, "cannot talk to postgres"))
	}
	return db
}

func mustConnectMongo(o *config.Options) *mongostore.DB {
	ctx, done := context.WithTimeout(context.Background(), o.ConnectTimeout)
	defer done()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(o.MongoURI))
	if err != nil {
		panic(errors.Tag(err, "cannot talk to mongo"))
	}
	if err = client.Ping(ctx, nil); err != nil {
		panic(errors.Tag(err, "cannot talk to mongo"))
	}
	return mongostore.New(client.Database(o.MongoDB))
}

func main() {
	triggerExitCtx, triggerExit := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer triggerExit()

	o := config.Load()

	rClient := mustConnectRedis(o)
	docs := mustConnectMongo(o)
	versions := mustConnectPostgres(o)
	s := store.Compose(docs, versions)

	hub, err := session.NewHub(triggerExitCtx, s, rClient, o.HubSize)
	if err != nil {
		panic(errors.Tag(err, "hub setup"))
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/socket/{docId}", newSocketHandler(hub)).Methods(http.MethodGet)

	server := http.Server{
		Addr:    o.ListenAddress,
		Handler: r,
	}

	var errServeMux sync.Mutex
	var errServe error
	go func() {
		err2 := server.ListenAndServe()
		errServeMux.Lock()
		errServe = err2
		errServeMux.Unlock()
		triggerExit()
	}()

	<-triggerExitCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()
	pendingShutdown := pendingOperation.TrackOperation(func() error {
		return server.Shutdown(ctx)
	})
	errClose := pendingShutdown.Wait(ctx)
	hub.Close()

	errServeMux.Lock()
	defer errServeMux.Unlock()
	if errServe != nil && errServe != http.ErrServerClosed {
		panic(errServe)
	}
	if errClose != nil {
		panic(errClose)
	}
}
