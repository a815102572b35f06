package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/sightline/internal/app"
	"github.com/okian/sightline/internal/config"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("IDT_ADDR", ":8080")
			t.Setenv("IDT_QUEUE_SIZE", "1000")
			t.Setenv("IDT_STORE_BACKEND", "memory")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreMemory)
			})
		})

		convey.Convey("When testing invalid configuration", func() {
			t.Setenv("IDT_STORE_BACKEND", "cassandra")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestRouter(t *testing.T) {
	convey.Convey("Given a started service behind the router", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.KafkaEnabled = false
		cfg.StoreBackend = config.StoreMemory

		svc := app.New(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		h := newRouter(svc)

		for _, path := range []string{"/health", "/healthz", "/stats", "/api-docs", "/openapi.yaml"} {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		}

		convey.Convey("Unknown persons are not found", func() {
			req := httptest.NewRequest(http.MethodGet, "/persons/nobody", http.NoBody)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}
