package cachepool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hlsproxy/downloader"
	"hlsproxy/logger"
)

func newTestPool(sizeLimit uint64, ttl time.Duration, handler http.HandlerFunc) (*Pool, *httptest.Server) {
	srv := httptest.NewServer(handler)
	dl := downloader.New(srv.Client(), 1, logger.Default)
	return New(sizeLimit, ttl, dl, logger.Default), srv
}

func TestGetSingleFlight(t *testing.T) {
	var hits int32
	pool, srv := newTestPool(1<<30, time.Second, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte("segment-data"))
	})
	defer srv.Close()

	done := make(chan Resource, 5)
	for i := 0; i < 5; i++ {
		go func() {
			res, err := pool.Get(context.Background(), srv.URL)
			if err != nil {
				t.Errorf("Get returned error: %v", err)
				done <- Resource{}
				return
			}
			done <- res
		}()
	}

	for i := 0; i < 5; i++ {
		res := <-done
		if string(res.Body) != "segment-data" {
			t.Errorf("body = %q, want %q", res.Body, "segment-data")
		}
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("upstream hit count = %d, want 1 (single-flight)", got)
	}
}

func TestGetIdleExpiryTriggersRefetch(t *testing.T) {
	var hits int32
	pool, srv := newTestPool(1<<30, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("data"))
	})
	defer srv.Close()

	if _, err := pool.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("first Get returned error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := pool.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("second Get returned error: %v", err)
	}

	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("upstream hit count = %d, want 2 (idle expiry should force refetch)", got)
	}
}

func TestGetLivenessKeepsEntryAlive(t *testing.T) {
	var hits int32
	pool, srv := newTestPool(1<<30, 80*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("data"))
	})
	defer srv.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := pool.Get(context.Background(), srv.URL); err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("upstream hit count = %d, want 1 (repeated access should keep the entry alive)", got)
	}
}

func TestGetOutOfMemoryOnFullPool(t *testing.T) {
	pool, srv := newTestPool(1, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	})
	defer srv.Close()

	if _, err := pool.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("first Get returned error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, err := pool.Get(context.Background(), srv.URL+"/other")
	if err != ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}
