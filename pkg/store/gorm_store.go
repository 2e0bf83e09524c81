package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"publishelf/pkg/domain"
)

// GormStore implements Store using GORM + Postgres. Bid submission takes a
// row lock on the lot (SELECT ... FOR UPDATE) so concurrent submissions on
// the same lot serialize; submissions on different lots lock different rows
// and do not contend.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&LotModel{}, &BidModel{}, &BidderModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateLot inserts a new lot. The ledger starts empty.
func (s *GormStore) CreateLot(ctx context.Context, lot domain.AuctionLot) error {
	model := lotToModel(lot)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetLot retrieves a lot with its full bid ledger, oldest bid first.
func (s *GormStore) GetLot(ctx context.Context, id string) (domain.AuctionLot, bool, error) {
	var model LotModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuctionLot{}, false, nil
		}
		return domain.AuctionLot{}, false, err
	}
	bids, err := s.lotBids(s.db.WithContext(ctx), id)
	if err != nil {
		return domain.AuctionLot{}, false, err
	}
	return lotFromModel(model, bids), true, nil
}

// ListLots returns all lots with their ledgers, ordered by creation time.
func (s *GormStore) ListLots(ctx context.Context) ([]domain.AuctionLot, error) {
	var models []LotModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	var allBids []BidModel
	if err := s.db.WithContext(ctx).Order("placed_at ASC").Find(&allBids).Error; err != nil {
		return nil, err
	}
	byLot := make(map[string][]BidModel)
	for _, b := range allBids {
		byLot[b.LotID] = append(byLot[b.LotID], b)
	}
	res := make([]domain.AuctionLot, 0, len(models))
	for _, m := range models {
		res = append(res, lotFromModel(m, byLot[m.ID]))
	}
	return res, nil
}

// AppendBid implements the per-lot atomic read-validate-append-persist unit.
func (s *GormStore) AppendBid(ctx context.Context, lotID string, decide DecideBid) (domain.AuctionLot, error) {
	var updated domain.AuctionLot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model LotModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", lotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLotNotFound
			}
			return err
		}
		bids, err := s.lotBids(tx, lotID)
		if err != nil {
			return err
		}
		lot := lotFromModel(model, bids)

		bid, err := decide(lot)
		if err != nil {
			return err
		}

		bidModel := bidToModel(lotID, bid)
		if err := tx.Create(&bidModel).Error; err != nil {
			return fmt.Errorf("append bid: %w", err)
		}
		if err := tx.Model(&LotModel{}).
			Where("id = ?", lotID).
			Update("current_price", bid.Amount).Error; err != nil {
			return fmt.Errorf("update current price: %w", err)
		}

		lot.BiddingHistory = append(lot.BiddingHistory, bid)
		lot.CurrentPrice = bid.Amount
		updated = lot
		return nil
	})
	if err != nil {
		return domain.AuctionLot{}, err
	}
	return updated, nil
}

// SaveBidder upserts a bidder's display identity.
func (s *GormStore) SaveBidder(ctx context.Context, b domain.Bidder) error {
	model := BidderModel{ID: b.ID, Name: b.Name, Email: b.Email, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
	}).Create(&model).Error
}

// GetBidders resolves bidder ids to display identities. Unknown ids are
// simply absent from the result.
func (s *GormStore) GetBidders(ctx context.Context, ids []string) (map[string]domain.Bidder, error) {
	res := make(map[string]domain.Bidder, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var models []BidderModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		res[m.ID] = domain.Bidder{ID: m.ID, Name: m.Name, Email: m.Email}
	}
	return res, nil
}

func (s *GormStore) lotBids(tx *gorm.DB, lotID string) ([]BidModel, error) {
	var bids []BidModel
	if err := tx.Where("lot_id = ?", lotID).Order("placed_at ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}
