package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"neuromail-go/internal/config"
	store "neuromail-go/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	mode := flag.String("mode", "", "operation mode: export | import | verify | keys | get | set | delete")
	filePath := flag.String("file", "", "file path for export/import/verify (default: stdout/stdin)")
	configPath := flag.String("config", "", "path to configuration file")
	key := flag.String("key", "", "key for get/set/delete")
	value := flag.String("value", "", "value for set (default: stdin)")
	timeout := flag.Duration("timeout", 30*time.Second, "operation timeout")
	flag.Parse()

	if *mode == "" {
		fail(fmt.Errorf("missing -mode (export|import|verify|keys|get|set|delete)"))
	}
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(fmt.Errorf("load configuration: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		fail(fmt.Errorf("open storage backend: %w", err))
	}
	defer backend.Close()

	switch strings.ToLower(*mode) {
	case "export":
		err = withWriter(*filePath, func(w io.Writer) error { return runExport(ctx, backend, w) })
	case "import":
		err = withReader(*filePath, func(r io.Reader) error { return runImport(ctx, backend, r) })
	case "verify":
		var matches bool
		err = withReader(*filePath, func(r io.Reader) error {
			var verr error
			matches, verr = runVerify(ctx, backend, r)
			return verr
		})
		if err == nil {
			if matches {
				fmt.Println("storage matches reference snapshot")
			} else {
				fmt.Println("storage diverges from reference snapshot")
				os.Exit(1)
			}
		}
	case "keys":
		err = runKeys(ctx, backend, os.Stdout)
	case "get":
		err = runGet(ctx, backend, *key, os.Stdout)
	case "set":
		var data []byte
		if *value != "" {
			data = []byte(*value)
		} else if data, err = io.ReadAll(os.Stdin); err != nil {
			fail(err)
		}
		err = runSet(ctx, backend, *key, data)
	case "delete":
		err = runDelete(ctx, backend, *key)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fail(err)
	}
}

// snapshot maps every key to its value. JSON values are embedded as-is;
// anything else is embedded as a JSON string.
func snapshot(ctx context.Context, backend store.Backend) (map[string]json.RawMessage, error) {
	keys, err := backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		v, err := backend.Get(ctx, k)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		if json.Valid(v) {
			out[k] = json.RawMessage(v)
			continue
		}
		quoted, _ := json.Marshal(string(v))
		out[k] = quoted
	}
	return out, nil
}

func runExport(ctx context.Context, backend store.Backend, w io.Writer) error {
	data, err := snapshot(ctx, backend)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("write export json: %w", err)
	}
	return nil
}

func runImport(ctx context.Context, backend store.Backend, r io.Reader) error {
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return fmt.Errorf("read import json: %w", err)
	}
	for k, raw := range payload {
		value := []byte(raw)
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			value = []byte(s)
		}
		if err := backend.Set(ctx, k, value); err != nil {
			return fmt.Errorf("import %s: %w", k, err)
		}
	}
	return nil
}

func runVerify(ctx context.Context, backend store.Backend, r io.Reader) (bool, error) {
	var expected map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&expected); err != nil {
		return false, fmt.Errorf("read reference json: %w", err)
	}
	current, err := snapshot(ctx, backend)
	if err != nil {
		return false, err
	}
	if len(expected) != len(current) {
		return false, nil
	}
	for k, want := range expected {
		got, ok := current[k]
		if !ok || !sameJSON(want, got) {
			return false, nil
		}
	}
	return true, nil
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func runKeys(ctx context.Context, backend store.Backend, w io.Writer) error {
	keys, err := backend.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(w, k)
	}
	return nil
}

func runGet(ctx context.Context, backend store.Backend, key string, w io.Writer) error {
	if key == "" {
		return fmt.Errorf("missing -key")
	}
	v, err := backend.Get(ctx, key)
	if err != nil {
		return err
	}
	_, err = w.Write(v)
	return err
}

func runSet(ctx context.Context, backend store.Backend, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("missing -key")
	}
	return backend.Set(ctx, key, value)
}

func runDelete(ctx context.Context, backend store.Backend, key string) error {
	if key == "" {
		return fmt.Errorf("missing -key")
	}
	return backend.Delete(ctx, key)
}

func withWriter(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()
	return fn(f)
}

func withReader(path string, fn func(io.Reader) error) error {
	if path == "" {
		return fn(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "storageutil:", err)
	os.Exit(1)
}
