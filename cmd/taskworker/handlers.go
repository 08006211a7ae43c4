/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/acronis/go-callkit/config"
	"github.com/acronis/go-callkit/decorate"
	"github.com/acronis/go-callkit/worker"
)

// Task types served by the demo worker.
const (
	taskTypeEcho   = "echo"
	taskTypeSHA256 = "sha256"
	taskTypeSleep  = "sleep"
)

type sleepRequest struct {
	Duration config.TimeDuration `json:"duration"`
}

type sleepResponse struct {
	Slept string `json:"slept"`
}

func echoHandler(_ context.Context, data json.RawMessage) (json.RawMessage, error) {
	return data, nil
}

func sha256Sum(_ context.Context, s string) (string, error) {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

func sleep(ctx context.Context, req sleepRequest) (sleepResponse, error) {
	d := time.Duration(req.Duration)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return sleepResponse{Slept: d.String()}, nil
	case <-ctx.Done():
		return sleepResponse{}, ctx.Err()
	}
}

// registerHandlers registers the demo handlers.
// Hashing is coalesced and memoized, sleeping is bounded by its own concurrency limit.
func registerHandlers(w *worker.Worker, cfg *appConfig) error {
	hash, err := decorate.Delegate(sha256Sum, nil)
	if err != nil {
		return err
	}
	memoizedHash, err := decorate.Memoize(hash, cfg.SHA256)
	if err != nil {
		return err
	}
	limitedSleep, err := decorate.ThrottleAsync(sleep, cfg.Sleep.ParallelCalls)
	if err != nil {
		return err
	}

	w.RegisterTaskHandler(taskTypeEcho, echoHandler)
	w.RegisterTaskHandler(taskTypeSHA256, worker.Handle(memoizedHash))
	w.RegisterTaskHandler(taskTypeSleep, worker.Handle(limitedSleep))
	return nil
}
