package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Line is a cart item joined with its product.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	AddedAt   time.Time       `json:"added_at"`
}

// View is the buyer's cart. Subtotal covers available lines only.
type View struct {
	Items    []Line          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Service manages a buyer's cart.
type Service interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*View, error)
	Add(ctx context.Context, buyerID, productID uuid.UUID) (*View, error)
	Remove(ctx context.Context, buyerID, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type service struct {
	repo     *Repository
	products productLoader
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	items, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	byID, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &View{Items: make([]Line, 0, len(items)), Subtotal: decimal.Zero}
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			// Listing removed from the catalog.
			continue
		}
		line := Line{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			Title:     product.Title,
			Price:     product.Price,
			Available: !product.IsSold,
			AddedAt:   item.AddedAt,
		}
		if line.Available {
			view.Subtotal = view.Subtotal.Add(product.Price)
		}
		view.Items = append(view.Items, line)
	}
	view.Subtotal = money.Round(view.Subtotal)
	return view, nil
}

func (s *service) Add(ctx context.Context, buyerID, productID uuid.UUID) (*View, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cannot add your own product to the cart").
			WithDetails(map[string]any{"reason": "self_purchase", "product_id": productID})
	}
	if product.IsSold {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available").
			WithDetails(map[string]any{"reason": "already_reserved", "product_id": productID})
	}

	added, err := s.repo.Add(ctx, &models.CartItem{
		BuyerID:   buyerID,
		ProductID: productID,
		AddedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add to cart")
	}
	if !added {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already in cart").
			WithDetails(map[string]any{"reason": "duplicate", "product_id": productID})
	}
	return s.Get(ctx, buyerID)
}

func (s *service) Remove(ctx context.Context, buyerID, productID uuid.UUID) (*View, error) {
	removed, err := s.repo.Remove(ctx, buyerID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove from cart")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
	}
	return s.Get(ctx, buyerID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if err := s.repo.Clear(ctx, buyerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}
