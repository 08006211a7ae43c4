/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-callkit/worker"
	"github.com/acronis/go-callkit/worker/httpchannel"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppConfig(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, `
log:
  level: error
worker:
  maxConcurrentTasks: 8
  sendTimeout: 3s
  taskTimeouts:
    sleep: 50ms
handlers:
  sleep:
    parallelCalls: 2
  sha256:
    expirationTime: 1m
    maxEntries: 100
retry:
  maxRetries: 5
`))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Worker.MaxConcurrentTasks)
	require.Equal(t, time.Second*3, time.Duration(cfg.Worker.SendTimeout))
	require.Equal(t, map[string]time.Duration{"sleep": time.Millisecond * 50}, cfg.Worker.Opts().TaskTimeouts)
	require.Equal(t, 2, cfg.Sleep.ParallelCalls)
	require.Equal(t, time.Minute, time.Duration(cfg.SHA256.ExpirationTime))
	require.Equal(t, 100, cfg.SHA256.MaxEntries)
	require.Equal(t, 5, cfg.Retry.MaxRetries)

	_, err = loadAppConfig(writeConfig(t, `
handlers:
  sleep:
    parallelCalls: 0
`))
	require.EqualError(t, err, "handlers.sleep.parallelCalls: must be >= 1")
}

func TestHandlers(t *testing.T) {
	cfg, err := loadAppConfig("")
	require.NoError(t, err)
	w, err := worker.New(worker.Opts{})
	require.NoError(t, err)
	require.NoError(t, registerHandlers(w, cfg))

	tests := []struct {
		name     string
		taskType string
		data     string
		wantType worker.MessageType
		wantData string
	}{
		{name: "echo", taskType: taskTypeEcho, data: `{"a":[1,2]}`, wantType: worker.MessageTypeResult, wantData: `{"a":[1,2]}`},
		{
			name:     "sha256",
			taskType: taskTypeSHA256,
			data:     `"abc"`,
			wantType: worker.MessageTypeResult,
			wantData: `"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"`,
		},
		{name: "sleep", taskType: taskTypeSleep, data: `{"duration":"5ms"}`, wantType: worker.MessageTypeResult, wantData: `{"slept":"5ms"}`},
		{name: "sleep with invalid duration", taskType: taskTypeSleep, data: `{"duration":"-5ms"}`, wantType: worker.MessageTypeError},
		{name: "unknown", taskType: "resize", data: `1`, wantType: worker.MessageTypeError},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			res := w.Execute(context.Background(), worker.NewTaskMessage("1", tt.taskType, json.RawMessage(tt.data)))
			require.Equal(t, tt.wantType, res.Type, res.Error)
			require.Equal(t, "1", res.ID)
			if tt.wantData != "" {
				require.JSONEq(t, tt.wantData, string(res.Data))
			}
		})
	}
}

func TestRunServe_Stdio(t *testing.T) {
	configPath := writeConfig(t, "log:\n  level: error\n")
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	served := make(chan error, 1)
	go func() {
		served <- runServe(context.Background(), serveFlags{configPath: configPath}, stdinReader, stdoutWriter)
	}()

	var input bytes.Buffer
	for _, msg := range []*worker.Message{
		worker.NewTaskMessage("1", taskTypeEcho, json.RawMessage(`"hi"`)),
		worker.NewTaskMessage("2", taskTypeSHA256, json.RawMessage(`"abc"`)),
		worker.NewTaskMessage("3", "UNKNOWN", json.RawMessage(`456`)),
	} {
		data, err := worker.EncodeMessage(msg)
		require.NoError(t, err)
		input.Write(append(data, '\n'))
	}
	go func() {
		_, _ = stdinWriter.Write(input.Bytes())
		_ = stdinWriter.Close()
	}()

	replies := make(map[string]*worker.Message)
	scanner := bufio.NewScanner(stdoutReader)
	for scanner.Scan() {
		msg, err := worker.DecodeMessage(scanner.Bytes())
		require.NoError(t, err)
		replies[msg.ID] = msg
	}

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("serve did not stop after the end of input")
	}

	require.Len(t, replies, 3)
	require.JSONEq(t, `"hi"`, string(replies["1"].Data))
	require.Equal(t, worker.MessageTypeResult, replies["2"].Type)
	require.Equal(t, worker.MessageTypeError, replies["3"].Type)
}

func TestRunDispatch(t *testing.T) {
	cfg, err := loadAppConfig("")
	require.NoError(t, err)
	w, err := worker.New(worker.Opts{})
	require.NoError(t, err)
	require.NoError(t, registerHandlers(w, cfg))
	srv := httptest.NewServer(httpchannel.NewHandler(w, httpchannel.HandlerOpts{}))
	defer srv.Close()

	configPath := writeConfig(t, "log:\n  level: error\n")
	var out bytes.Buffer
	err = runDispatch(context.Background(), configPath, srv.URL, time.Second*5, taskTypeSHA256, json.RawMessage(`"abc"`), &out)
	require.NoError(t, err)
	require.Equal(t, `"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"`+"\n", out.String())

	err = runDispatch(context.Background(), configPath, srv.URL, time.Second*5, "resize", nil, &out)
	var taskErr *worker.TaskError
	require.ErrorAs(t, err, &taskErr)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "go-callkit/")
}
