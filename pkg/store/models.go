package store

import (
	"time"

	"github.com/shopspring/decimal"

	"publishelf/pkg/domain"
)

// GORM models used for persistence.
type LotModel struct {
	ID           string `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Author       string `gorm:"not null"`
	Description  string `gorm:"type:text"`
	Genre        string
	Condition    string          `gorm:"not null"`
	BasePrice    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CurrentPrice decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	AuctionStart time.Time       `gorm:"not null;index"`
	AuctionEnd   time.Time       `gorm:"not null;index"`
	OwnerID      string          `gorm:"not null;index"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (LotModel) TableName() string { return "auction_lots" }

type BidModel struct {
	ID       string          `gorm:"primaryKey"`
	LotID    string          `gorm:"not null;index"`
	BidderID string          `gorm:"not null;index"`
	Amount   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PlacedAt time.Time       `gorm:"not null;index"`
}

func (BidModel) TableName() string { return "auction_bids" }

type BidderModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Email     string
	UpdatedAt time.Time
}

func (BidderModel) TableName() string { return "bidders" }

func lotToModel(l domain.AuctionLot) LotModel {
	return LotModel{
		ID:           l.ID,
		Title:        l.Title,
		Author:       l.Author,
		Description:  l.Description,
		Genre:        l.Genre,
		Condition:    string(l.Condition),
		BasePrice:    l.BasePrice,
		CurrentPrice: l.CurrentPrice,
		AuctionStart: l.AuctionStart,
		AuctionEnd:   l.AuctionEnd,
		OwnerID:      l.OwnerID,
		CreatedAt:    l.CreatedAt,
	}
}

func lotFromModel(m LotModel, bids []BidModel) domain.AuctionLot {
	history := make([]domain.Bid, 0, len(bids))
	for _, b := range bids {
		history = append(history, bidFromModel(b))
	}
	return domain.AuctionLot{
		ID:             m.ID,
		Title:          m.Title,
		Author:         m.Author,
		Description:    m.Description,
		Genre:          m.Genre,
		Condition:      domain.Condition(m.Condition),
		BasePrice:      m.BasePrice,
		CurrentPrice:   m.CurrentPrice,
		AuctionStart:   m.AuctionStart,
		AuctionEnd:     m.AuctionEnd,
		OwnerID:        m.OwnerID,
		BiddingHistory: history,
		CreatedAt:      m.CreatedAt,
	}
}

func bidToModel(lotID string, b domain.Bid) BidModel {
	return BidModel{
		ID:       b.ID,
		LotID:    lotID,
		BidderID: b.BidderID,
		Amount:   b.Amount,
		PlacedAt: b.PlacedAt,
	}
}

func bidFromModel(m BidModel) domain.Bid {
	return domain.Bid{
		ID:       m.ID,
		BidderID: m.BidderID,
		Amount:   m.Amount,
		PlacedAt: m.PlacedAt,
	}
}
