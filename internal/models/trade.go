package models

import "time"

// TradeRecord is an immutable journal entry created once per completed fill.
// Seq is unique and monotonically increasing within the record's trading day.
type TradeRecord struct {
	Seq         int       `json:"seq" csv:"seq"`
	Timestamp   time.Time `json:"timestamp" csv:"timestamp"`
	Symbol      string    `json:"symbol" csv:"symbol"`
	Side        OrderSide `json:"side" csv:"side"`
	Quantity    int       `json:"quantity" csv:"quantity"`
	Price       float64   `json:"price" csv:"price"`
	Fees        float64   `json:"fees" csv:"fees"`
	RealizedPnL float64   `json:"realized_pnl" csv:"realized_pnl"`
	Closing     bool      `json:"closing" csv:"closing"`
	CashAfter   float64   `json:"cash_after" csv:"cash_after"`
	Strategy    string    `json:"strategy" csv:"strategy"`
	AttemptID   string    `json:"attempt_id" csv:"attempt_id"`
}

// TradingDay returns the calendar day key used for journal grouping.
func (t TradeRecord) TradingDay() string {
	return t.Timestamp.Format("2006-01-02")
}

// TradeStats holds running statistics across completed closing fills.
type TradeStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalPnL    float64 `json:"total_pnl"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
}

// Record folds one closing fill into the running statistics.
func (s *TradeStats) Record(pnl float64) {
	s.TotalTrades++
	s.TotalPnL += pnl
	if pnl >= 0 {
		s.Wins++
	} else {
		s.Losses++
	}
	if pnl > s.BestTrade {
		s.BestTrade = pnl
	}
	if pnl < s.WorstTrade {
		s.WorstTrade = pnl
	}
}

// WinRate returns the percentage of winning closing fills.
func (s *TradeStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades) * 100
}
