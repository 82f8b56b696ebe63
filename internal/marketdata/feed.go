package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"algo-trader/internal/config"
	"algo-trader/internal/models"
)

// tickMessage is the wire shape of one feed tick.
type tickMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Signal    *struct {
		Bias          string  `json:"bias"`
		TrendStrength float64 `json:"trend_strength"`
	} `json:"signal,omitempty"`
}

// TickFeed consumes a websocket tick stream and publishes quotes into the
// price cache and market-context hints onto the signal board. It reconnects
// on failure until the context is cancelled.
type TickFeed struct {
	cfg     config.FeedConfig
	cache   *PriceCache
	signals *SignalBoard
	logger  zerolog.Logger
}

// NewTickFeed creates a tick feed writing into cache and signals.
func NewTickFeed(cfg config.FeedConfig, cache *PriceCache, signals *SignalBoard, logger zerolog.Logger) *TickFeed {
	return &TickFeed{cfg: cfg, cache: cache, signals: signals, logger: logger}
}

// Run connects and consumes ticks until ctx is cancelled. Each dropped
// connection waits the reconnect interval before redialing.
func (f *TickFeed) Run(ctx context.Context) error {
	for {
		if err := f.consume(ctx); err != nil {
			f.logger.Warn().Err(err).Str("url", f.cfg.URL).Msg("Tick feed disconnected")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.ReconnectInterval):
		}
	}
}

func (f *TickFeed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.logger.Info().Str("url", f.cfg.URL).Msg("Tick feed connected")

	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(1 << 20)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		f.handle(payload)
	}
}

func (f *TickFeed) handle(payload []byte) {
	var msg tickMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		f.logger.Debug().Err(err).Msg("Discarding malformed tick")
		return
	}
	if msg.Symbol == "" || msg.Price <= 0 {
		return
	}

	ts := time.UnixMilli(msg.Timestamp)
	if msg.Timestamp == 0 {
		ts = time.Now()
	}
	f.cache.Put(models.Quote{Symbol: msg.Symbol, Price: msg.Price, Timestamp: ts})

	if msg.Signal != nil && f.signals != nil {
		f.signals.Post(msg.Symbol, models.MarketContext{
			Bias:          models.MarketBias(msg.Signal.Bias),
			TrendStrength: msg.Signal.TrendStrength,
		})
	}
}
