package usecase

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
)

const statusTrading = "TRADING"

// SymbolUniverse resolves the tradable symbol set once per process.
type SymbolUniverse struct {
	market  domrepo.MarketData
	quote   string
	exclude map[string]struct{}
	l       *logger.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	symbols []string
}

func NewSymbolUniverse(market domrepo.MarketData, quoteAsset string, exclude []string, l *logger.Logger) *SymbolUniverse {
	ex := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
			ex[s] = struct{}{}
		}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &SymbolUniverse{market: market, quote: quoteAsset, exclude: ex, l: l.With("symbol_universe")}
}

// Resolve returns the filtered symbols. Concurrent callers share one upstream
// request; a failure is returned as *models.ResolutionError and is not cached.
func (u *SymbolUniverse) Resolve(ctx context.Context) ([]string, error) {
	u.mu.RLock()
	cached := u.symbols
	u.mu.RUnlock()
	if cached != nil {
		return append([]string(nil), cached...), nil
	}

	v, err, _ := u.group.Do("universe", func() (interface{}, error) {
		infos, err := u.market.ExchangeSymbols(ctx)
		if err != nil {
			return nil, &models.ResolutionError{Err: err}
		}
		out := u.filter(infos)
		u.mu.Lock()
		u.symbols = out
		u.mu.Unlock()
		u.l.Info("symbol universe resolved", logger.Int("symbols", len(out)), logger.Int("listed", len(infos)))
		return out, nil
	})
	if err != nil {
		u.l.Error("symbol universe failed", logger.Error(err))
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

func (u *SymbolUniverse) filter(infos []models.SymbolInfo) []string {
	out := make([]string, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Symbol, u.quote) {
			continue
		}
		if info.Status != "" && info.Status != statusTrading {
			continue
		}
		if _, ok := u.exclude[info.Symbol]; ok {
			continue
		}
		if _, dup := seen[info.Symbol]; dup {
			continue
		}
		seen[info.Symbol] = struct{}{}
		out = append(out, info.Symbol)
	}
	return out
}
