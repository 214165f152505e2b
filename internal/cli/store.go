package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/aretw0/pageflow/internal/adapters/file"
	"github.com/aretw0/pageflow/internal/adapters/redis"
	"github.com/aretw0/pageflow/internal/config"
	"github.com/aretw0/pageflow/pkg/adapters/memory"
	"github.com/aretw0/pageflow/pkg/persistence/middleware"
	"github.com/aretw0/pageflow/pkg/ports"
)

// openStore creates the history store selected by cfg, wrapped in the
// configured redaction and encryption middleware. The returned function
// releases it.
func openStore(cfg config.StoreConfig) (ports.HistoryStore, func() error, error) {
	mws, err := storeMiddleware(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := openBaseStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return middleware.Chain(store, mws...), closeFn, nil
}

func openBaseStore(cfg config.StoreConfig) (ports.HistoryStore, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Kind {
	case config.StoreMemory, "":
		return memory.NewHistory(), nop, nil
	case config.StoreFile:
		return file.New(cfg.Path, cfg.Name), nop, nil
	case config.StoreRedis:
		opts := []redis.Option{redis.WithName(cfg.Name)}
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		s := redis.New(cfg.RedisAddr, "", 0, opts...)
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

// storeMiddleware builds the wrappers in application order: redaction runs
// before encryption so masked values are what gets sealed.
func storeMiddleware(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		patterns, err := middleware.CompilePatterns(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	if cfg.EncryptionKey == "" {
		return mws, nil
	}
	active, err := decodeKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return key, nil
}
