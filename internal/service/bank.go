package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/currencylayer-bank/internal/config"
	"github.com/dalfonso89/currencylayer-bank/internal/currency"
	"github.com/dalfonso89/currencylayer-bank/internal/feed"
	"github.com/dalfonso89/currencylayer-bank/internal/metrics"
	"github.com/dalfonso89/currencylayer-bank/internal/money"
	"github.com/dalfonso89/currencylayer-bank/internal/store"
)

// Options configure where a Bank gets its quotes from and how long they live.
type Options struct {
	Source    string
	TTL       time.Duration // 0 never expires
	Secure    bool
	AccessKey string
	Host      string
}

// Option customises a Bank.
type Option func(*Bank)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(bank *Bank) { bank.now = now }
}

// WithMetrics records feed, cache and lookup counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(bank *Bank) { bank.metrics = m }
}

// Bank answers exchange rates from the currencylayer live feed.
//
// Several banks may share one store. Each keeps its own rate table and refresh
// marker and re-adopts the shared document when a sibling refreshed it.
type Bank struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics
	store   store.Store
	fetcher feed.Fetcher
	now     func() time.Time

	optionsMutex sync.RWMutex
	options      Options

	table *RateTable

	markerMutex   sync.Mutex
	loaded        bool
	marker        time.Time
	forceStraight bool

	// held for writing while the table is rebuilt, for reading while resolving
	refreshMutex sync.RWMutex
	refreshGroup singleflight.Group
}

var _ money.RateStore = (*Bank)(nil)

// NewBank creates a bank. A nil store keeps nothing between refreshes and a nil
// fetcher uses a plain HTTP client.
func NewBank(options Options, cacheStore store.Store, fetcher feed.Fetcher, logger *logrus.Logger, opts ...Option) (*Bank, error) {
	if options.Source == "" {
		options.Source = config.DefaultSource
	}
	source, ok := currency.Normalize(options.Source)
	if !ok {
		return nil, fmt.Errorf("source %q: %w", options.Source, currency.ErrUnknownCurrency)
	}
	options.Source = source
	if options.TTL < 0 {
		options.TTL = 0
	}
	if cacheStore == nil {
		cacheStore = store.NullStore{}
	}
	if fetcher == nil {
		fetcher = feed.NewClient(0)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	bank := &Bank{
		logger:  logger,
		store:   cacheStore,
		fetcher: fetcher,
		now:     time.Now,
		options: options,
		table:   NewRateTable(),
	}
	for _, opt := range opts {
		opt(bank)
	}
	return bank, nil
}

// NewBankFromConfig creates a bank from application configuration.
func NewBankFromConfig(cfg *config.Config, cacheStore store.Store, logger *logrus.Logger, opts ...Option) (*Bank, error) {
	if cfg.AccessKey == "" {
		logger.Warn("CURRENCYLAYER_ACCESS_KEY is not set; rate requests will fail until it is")
	}
	return NewBank(Options{
		Source:    cfg.Source,
		TTL:       cfg.RatesTTL,
		Secure:    cfg.Secure,
		AccessKey: cfg.AccessKey,
		Host:      cfg.Host,
	}, cacheStore, feed.NewClient(cfg.FetchTimeout), logger, opts...)
}

func (bank *Bank) Options() Options {
	bank.optionsMutex.RLock()
	defer bank.optionsMutex.RUnlock()
	return bank.options
}

func (bank *Bank) Source() string {
	return bank.Options().Source
}

// SetTTL changes the time to live. Expiry is evaluated on the next request.
func (bank *Bank) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	bank.optionsMutex.Lock()
	bank.options.TTL = ttl
	bank.optionsMutex.Unlock()
}

func (bank *Bank) SetSecure(secure bool) {
	bank.optionsMutex.Lock()
	bank.options.Secure = secure
	bank.optionsMutex.Unlock()
}

func (bank *Bank) SetAccessKey(accessKey string) {
	bank.optionsMutex.Lock()
	bank.options.AccessKey = accessKey
	bank.optionsMutex.Unlock()
}

// SetSource switches the base currency. The next request refreshes straight from
// the feed since the stored document quotes the old source.
func (bank *Bank) SetSource(code string) error {
	source, ok := currency.Normalize(code)
	if !ok {
		return fmt.Errorf("source %q: %w", code, currency.ErrUnknownCurrency)
	}
	bank.optionsMutex.Lock()
	bank.options.Source = source
	bank.optionsMutex.Unlock()

	bank.markerMutex.Lock()
	bank.forceStraight = true
	bank.markerMutex.Unlock()
	return nil
}

// SourceURL returns the feed URL for the current options.
func (bank *Bank) SourceURL() (string, error) {
	options := bank.Options()
	return feed.SourceURL(feed.Endpoint{
		Host:      options.Host,
		Source:    options.Source,
		AccessKey: options.AccessKey,
		Secure:    options.Secure,
	})
}

// Timestamp is the feed timestamp of the document this bank last ingested.
func (bank *Bank) Timestamp() time.Time {
	bank.markerMutex.Lock()
	defer bank.markerMutex.Unlock()
	return bank.marker
}

// Expiration is Timestamp plus the TTL; zero when the TTL is disabled.
func (bank *Bank) Expiration() time.Time {
	ttl := bank.Options().TTL
	if ttl == 0 {
		return time.Time{}
	}
	return bank.Timestamp().Add(ttl)
}

// Rates returns a copy of the current table, including memoised derived rates.
func (bank *Bank) Rates() map[string]float64 {
	return bank.table.Snapshot()
}

// Freshness reports what the next rate request will do before resolving.
func (bank *Bank) Freshness(ctx context.Context) State {
	input := freshnessInput{now: bank.now(), ttl: bank.Options().TTL}

	if raw, ok := bank.store.Read(ctx); ok {
		if document := feed.Parse(raw); document.Valid() {
			input.hasShared = true
			input.shared = document.Timestamp
		}
	}

	bank.markerMutex.Lock()
	input.loaded = bank.loaded
	input.marker = bank.marker
	forceStraight := bank.forceStraight
	bank.markerMutex.Unlock()

	if forceStraight {
		return StateExpired
	}
	return evaluateFreshness(input)
}

// GetRate returns the multiplier converting an amount of from into to.
// Unknown pairs fail with money.ErrUnknownRate.
func (bank *Bank) GetRate(ctx context.Context, from, to string) (float64, error) {
	fromCode, ok := currency.Normalize(from)
	if !ok {
		return 0, fmt.Errorf("%w: %q", currency.ErrUnknownCurrency, from)
	}
	toCode, ok := currency.Normalize(to)
	if !ok {
		return 0, fmt.Errorf("%w: %q", currency.ErrUnknownCurrency, to)
	}
	if fromCode == toCode {
		return 1, nil
	}

	if _, err := bank.expireRates(ctx); err != nil {
		return 0, err
	}

	bank.refreshMutex.RLock()
	rate, ok := bank.resolve(fromCode, toCode)
	bank.refreshMutex.RUnlock()
	if ok {
		return rate, nil
	}
	bank.metrics.RateLookup("unknown")
	return 0, fmt.Errorf("%w: %s to %s", money.ErrUnknownRate, fromCode, toCode)
}

// EnsureFresh runs the freshness check GetRate performs and any refresh it
// calls for, without resolving a pair. It returns the state the table is left
// in, evaluated without another store read.
func (bank *Bank) EnsureFresh(ctx context.Context) (State, error) {
	state, err := bank.expireRates(ctx)
	if err != nil || state == StateFresh {
		return state, err
	}
	return bank.settledState(), nil
}

// expireRates runs the freshness check and the refresh it calls for, and
// returns the state it found.
func (bank *Bank) expireRates(ctx context.Context) (State, error) {
	state := bank.Freshness(ctx)
	switch state {
	case StateExpired:
		bank.logger.Debugf("Rates expired, refreshing from feed")
		return state, bank.UpdateRates(ctx, true)
	case StateStale:
		bank.logger.Debugf("Rates stale, adopting shared document")
		return state, bank.UpdateRates(ctx, false)
	default:
		return state, nil
	}
}

// settledState is the freshness right after a refresh, when the table matches
// what the store was just read or written with.
func (bank *Bank) settledState() State {
	input := freshnessInput{now: bank.now(), ttl: bank.Options().TTL}

	bank.markerMutex.Lock()
	input.loaded = bank.loaded
	input.marker = bank.marker
	forceStraight := bank.forceStraight
	bank.markerMutex.Unlock()

	if forceStraight {
		return StateExpired
	}
	return evaluateFreshness(input)
}

// resolve tries the direct rate, the inverse rate, then a cross rate through
// the source currency. Derived rates are memoised in the table.
func (bank *Bank) resolve(from, to string) (float64, bool) {
	if rate, ok := bank.directOrInverse(from, to); ok {
		return rate, true
	}

	source := bank.Source()
	rateFrom, ok := bank.sourceRate(source, from)
	if !ok {
		return 0, false
	}
	rateTo, ok := bank.sourceRate(source, to)
	if !ok {
		return 0, false
	}

	bank.metrics.RateLookup("cross")
	return bank.table.SetIfAbsent(from, to, rateTo/rateFrom), true
}

func (bank *Bank) sourceRate(source, code string) (float64, bool) {
	if code == source {
		return 1, true
	}
	return bank.directOrInverse(source, code)
}

func (bank *Bank) directOrInverse(from, to string) (float64, bool) {
	if rate, ok := bank.table.Get(from, to); ok {
		bank.metrics.RateLookup("direct")
		return rate, true
	}
	if inverse, ok := bank.table.Get(to, from); ok {
		bank.metrics.RateLookup("inverse")
		return bank.table.SetIfAbsent(from, to, 1/inverse), true
	}
	return 0, false
}

// UpdateRates rebuilds the rate table. A straight refresh goes to the feed
// first; otherwise the shared store is tried first. Concurrent calls of the
// same kind share one refresh.
func (bank *Bank) UpdateRates(ctx context.Context, straight bool) error {
	mode := "careful"
	if straight {
		mode = "straight"
	}
	_, err, _ := bank.refreshGroup.Do(mode, func() (interface{}, error) {
		bank.refreshMutex.Lock()
		defer bank.refreshMutex.Unlock()
		return nil, bank.updateRates(ctx, straight)
	})
	return err
}

func (bank *Bank) updateRates(ctx context.Context, straight bool) error {
	options := bank.Options()

	var (
		document feed.Document
		fromFeed bool
		err      error
	)
	if straight {
		bank.metrics.Refresh("straight")
		document, fromFeed, err = bank.straightRefresh(ctx, options)
	} else {
		bank.metrics.Refresh("careful")
		document, fromFeed, err = bank.carefulRefresh(ctx, options)
	}
	if err != nil {
		bank.table.Reset()
		return err
	}

	bank.table.Replace(bank.ingest(options.Source, document))

	bank.markerMutex.Lock()
	bank.loaded = true
	bank.marker = document.Timestamp
	if fromFeed && document.Valid() {
		bank.forceStraight = false
	}
	bank.markerMutex.Unlock()

	bank.logger.WithFields(logrus.Fields{
		"source":    options.Source,
		"straight":  straight,
		"from_feed": fromFeed,
		"quotes":    len(document.Quotes),
		"outcome":   document.Outcome.String(),
		"timestamp": document.Timestamp.Unix(),
	}).Info("Rates updated")
	return nil
}

// ingest turns quotes keyed "<SRC><ISO>" into direct and reciprocal rates.
// Quotes from another source and codes the currency catalog does not know are
// skipped.
func (bank *Bank) ingest(source string, document feed.Document) map[Pair]float64 {
	rates := make(map[Pair]float64, len(document.Quotes)*2)
	for key, rate := range document.Quotes {
		if !quotesFrom(key, source) {
			continue
		}
		code, ok := currency.Normalize(key[3:])
		if !ok {
			bank.logger.Debugf("Skipping quote %s for unknown currency", key)
			continue
		}
		if code == source {
			continue
		}
		rates[Pair{source, code}] = rate
		rates[Pair{code, source}] = 1 / rate
	}
	return rates
}

// quotesFrom reports whether key is a "<SRC><ISO>" quote for source.
func quotesFrom(key, source string) bool {
	return len(key) == 6 && strings.EqualFold(key[:3], source)
}

// usableFor reports whether a cached document can stand in for source. A
// document quoting another source, written before the source changed, cannot.
func usableFor(document feed.Document, source string) bool {
	if !document.Valid() {
		return false
	}
	if document.Empty() {
		return true
	}
	for key := range document.Quotes {
		if quotesFrom(key, source) {
			return true
		}
	}
	return false
}

// carefulRefresh prefers the shared store and only calls the feed when the
// store has nothing usable. The bool reports whether the document was fetched.
func (bank *Bank) carefulRefresh(ctx context.Context, options Options) (feed.Document, bool, error) {
	cached := bank.readCache(ctx)
	if !cached.Empty() && usableFor(cached, options.Source) {
		return cached, false, nil
	}

	document, raw, err := bank.fetch(ctx, options)
	if err != nil {
		return feed.Document{}, false, err
	}
	if document.Valid() {
		if err := bank.writeCache(ctx, raw); err != nil {
			return feed.Document{}, false, err
		}
		return document, true, nil
	}
	if usableFor(cached, options.Source) {
		return cached, false, nil
	}
	return document, true, nil
}

// straightRefresh calls the feed and falls back to the shared store when the
// feed gives nothing usable.
func (bank *Bank) straightRefresh(ctx context.Context, options Options) (feed.Document, bool, error) {
	document, raw, err := bank.fetch(ctx, options)
	if err != nil {
		return feed.Document{}, false, err
	}
	if document.Valid() {
		if err := bank.writeCache(ctx, raw); err != nil {
			return feed.Document{}, false, err
		}
		return document, true, nil
	}

	if cached := bank.readCache(ctx); usableFor(cached, options.Source) {
		bank.logger.Warnf("Feed returned a %s document, serving cached rates", document.Outcome)
		return cached, false, nil
	}
	return document, true, nil
}

// fetch calls the feed. Only a missing access key is returned as an error;
// transport failures come back as an empty document.
func (bank *Bank) fetch(ctx context.Context, options Options) (feed.Document, []byte, error) {
	sourceURL, err := feed.SourceURL(feed.Endpoint{
		Host:      options.Host,
		Source:    options.Source,
		AccessKey: options.AccessKey,
		Secure:    options.Secure,
	})
	if err != nil {
		return feed.Document{}, nil, err
	}

	raw, err := bank.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		var fetchError *feed.FetchError
		if errors.As(err, &fetchError) {
			bank.logger.Warnf("Feed request failed: %v", fetchError)
		} else {
			bank.logger.Warnf("Feed request failed: %v", err)
		}
		bank.metrics.FeedRequest("error")
		return feed.Parse(nil), nil, nil
	}

	document := feed.Parse(raw)
	bank.metrics.FeedRequest(document.Outcome.String())
	if !document.Valid() {
		bank.logger.Warnf("Feed returned a %s document: %s", document.Outcome, truncate(raw, 200))
	}
	return document, raw, nil
}

func (bank *Bank) readCache(ctx context.Context) feed.Document {
	raw, ok := bank.store.Read(ctx)
	if !ok {
		bank.metrics.CacheRead("miss")
		return feed.Parse(nil)
	}
	document := feed.Parse(raw)
	if document.Valid() {
		bank.metrics.CacheRead("hit")
	} else {
		bank.metrics.CacheRead("invalid")
	}
	return document
}

func (bank *Bank) writeCache(ctx context.Context, raw []byte) error {
	if err := bank.store.Write(ctx, raw); err != nil {
		bank.metrics.CacheWrite("error")
		bank.logger.Errorf("Cache write failed: %v", err)
		return err
	}
	bank.metrics.CacheWrite("ok")
	return nil
}

func truncate(raw []byte, limit int) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
