package handler

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/engine"
)

// Wire representations. Token and collateral amounts are uint256 values and
// travel as decimal strings; book prices are quantized to six places.

type orderJSON struct {
	ID           int64     `json:"id"`
	OrderHash    string    `json:"order_hash"`
	ConditionID  string    `json:"condition_id"`
	TokenID      string    `json:"token_id"`
	Maker        string    `json:"maker"`
	Signer       string    `json:"signer,omitempty"`
	Side         string    `json:"side"`
	MakerAmount  string    `json:"maker_amount"`
	TakerAmount  string    `json:"taker_amount"`
	Price        string    `json:"price"`
	FilledAmount string    `json:"filled_amount"`
	FeeRateBps   int64     `json:"fee_rate_bps"`
	Nonce        int64     `json:"nonce"`
	Expiration   int64     `json:"expiration"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func renderOrder(o domain.Order) orderJSON {
	signer := o.Signer
	if signer == domain.ZeroAddress {
		signer = ""
	}
	return orderJSON{
		ID:           o.ID,
		OrderHash:    o.OrderHash,
		ConditionID:  o.ConditionID,
		TokenID:      o.TokenID,
		Maker:        o.Maker,
		Signer:       signer,
		Side:         string(o.Side),
		MakerAmount:  bigString(o.MakerAmount),
		TakerAmount:  bigString(o.TakerAmount),
		Price:        decimal.NewFromBigRat(engine.Price(&o), domain.BookPrecision).StringFixed(domain.BookPrecision),
		FilledAmount: bigString(o.FilledAmount),
		FeeRateBps:   o.FeeRateBps,
		Nonce:        o.Nonce,
		Expiration:   o.Expiration,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func renderOrders(orders []domain.Order) []orderJSON {
	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = renderOrder(o)
	}
	return out
}

type fillJSON struct {
	ID               int64      `json:"id"`
	MakerOrderID     int64      `json:"maker_order_id"`
	TakerOrderID     int64      `json:"taker_order_id"`
	Maker            string     `json:"maker"`
	Taker            string     `json:"taker"`
	TokenAmount      string     `json:"token_amount"`
	CollateralAmount string     `json:"collateral_amount"`
	Fee              string     `json:"fee"`
	Status           string     `json:"status"`
	TxHash           string     `json:"tx_hash,omitempty"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func renderFill(f domain.Fill) fillJSON {
	return fillJSON{
		ID:               f.ID,
		MakerOrderID:     f.MakerOrderID,
		TakerOrderID:     f.TakerOrderID,
		Maker:            f.Maker,
		Taker:            f.Taker,
		TokenAmount:      bigString(f.TokenAmount),
		CollateralAmount: bigString(f.CollateralAmount),
		Fee:              bigString(f.Fee),
		Status:           string(f.Status),
		TxHash:           f.TxHash,
		SettledAt:        f.SettledAt,
		CreatedAt:        f.CreatedAt,
	}
}

func renderFills(fills []domain.Fill) []fillJSON {
	out := make([]fillJSON, len(fills))
	for i, f := range fills {
		out[i] = renderFill(f)
	}
	return out
}

type marketJSON struct {
	ConditionID     string           `json:"condition_id"`
	QuestionID      string           `json:"question_id"`
	OracleAddress   string           `json:"oracle_address"`
	CollateralToken string           `json:"collateral_token"`
	YesTokenID      string           `json:"yes_token_id"`
	NoTokenID       string           `json:"no_token_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Category        string           `json:"category,omitempty"`
	ResolutionTime  int64            `json:"resolution_time"`
	Status          string           `json:"status"`
	YesPayout       *int             `json:"yes_payout,omitempty"`
	NoPayout        *int             `json:"no_payout,omitempty"`
	YesPrice        *decimal.Decimal `json:"yes_price,omitempty"`
	NoPrice         *decimal.Decimal `json:"no_price,omitempty"`
	Volume24h       string           `json:"volume_24h"`
	TotalVolume     string           `json:"total_volume"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func renderMarket(m domain.Market) marketJSON {
	return marketJSON{
		ConditionID:     m.ConditionID,
		QuestionID:      m.QuestionID,
		OracleAddress:   m.OracleAddress,
		CollateralToken: m.CollateralToken,
		YesTokenID:      m.YesTokenID,
		NoTokenID:       m.NoTokenID,
		Title:           m.Title,
		Description:     m.Description,
		Category:        m.Category,
		ResolutionTime:  m.ResolutionTime,
		Status:          string(m.Status),
		YesPayout:       m.YesPayout,
		NoPayout:        m.NoPayout,
		YesPrice:        m.YesPrice,
		NoPrice:         m.NoPrice,
		Volume24h:       bigString(m.Volume24h),
		TotalVolume:     bigString(m.TotalVolume),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func renderMarkets(markets []domain.Market) []marketJSON {
	out := make([]marketJSON, len(markets))
	for i, m := range markets {
		out[i] = renderMarket(m)
	}
	return out
}

type levelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Count int    `json:"count"`
}

type bookJSON struct {
	TokenID   string      `json:"token_id"`
	Bids      []levelJSON `json:"bids"`
	Asks      []levelJSON `json:"asks"`
	Mid       *string     `json:"mid"`
	Timestamp time.Time   `json:"timestamp"`
}

func renderBook(s domain.BookSnapshot) bookJSON {
	out := bookJSON{
		TokenID:   s.TokenID,
		Bids:      renderLevels(s.Bids),
		Asks:      renderLevels(s.Asks),
		Timestamp: s.Timestamp,
	}
	if s.Mid != nil {
		mid := s.Mid.StringFixed(domain.BookPrecision)
		out.Mid = &mid
	}
	return out
}

func renderLevels(levels []domain.PriceLevel) []levelJSON {
	out := make([]levelJSON, len(levels))
	for i, l := range levels {
		out[i] = levelJSON{
			Price: l.Price.StringFixed(domain.BookPrecision),
			Size:  bigString(l.Size),
			Count: l.Count,
		}
	}
	return out
}

type positionJSON struct {
	ConditionID string `json:"condition_id"`
	TokenID     string `json:"token_id"`
	Outcome     string `json:"outcome"`
	Title       string `json:"title"`
	Balance     string `json:"balance"`
}

func renderPositions(positions []domain.Position) []positionJSON {
	out := make([]positionJSON, len(positions))
	for i, p := range positions {
		out[i] = positionJSON{
			ConditionID: p.ConditionID,
			TokenID:     p.TokenID,
			Outcome:     p.Outcome,
			Title:       p.Title,
			Balance:     bigString(p.Balance),
		}
	}
	return out
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}
