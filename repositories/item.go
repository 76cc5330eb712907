//go:generate go run go.uber.org/mock/mockgen -source=item.go -destination=../mocks/mock_item_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"market-chat/domain"
	"market-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IItemRepository interface {
	CreateItem(title, sellerID string) (string, error)
	GetItem(id string) (domain.Item, error)
}

// ItemRepository resolves listing references on message payloads. Listings
// are owned by the marketplace backend; missing items are expected and the
// caller renders the message without the snippet.
type ItemRepository struct {
	db *badger.DB
}

func NewItemRepository(db *badger.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) CreateItem(title, sellerID string) (string, error) {
	newID := uuid.New().String()
	item := domain.Item{
		ID:        newID,
		Title:     title,
		SellerID:  sellerID,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("item:"+newID), data)
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

func (r *ItemRepository) GetItem(id string) (domain.Item, error) {
	var item domain.Item
	err := r.db.View(func(txn *badger.Txn) error {
		record, err := txn.Get([]byte("item:" + id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: item %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return record.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	return item, err
}
