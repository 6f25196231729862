package services

import (
	"context"
	"sync"
	"time"

	"golang-shop-backend/internal/models"
)

const (
	cartKeyPrefix = "shopping_cart"

	// Flat shipping fee in Ksh, charged whenever the cart is non-empty.
	ShippingFee = 500.0
)

// CartStorage is the durable store behind every cart. Satisfied by
// *cache.RedisCache.
type CartStorage interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// CartService hands out one CartStore per session. The store is the single
// writer of its storage key.
type CartService struct {
	storage CartStorage
	mu      sync.Mutex
	stores  map[string]*CartStore
}

func NewCartService(storage CartStorage) *CartService {
	return &CartService{
		storage: storage,
		stores:  make(map[string]*CartStore),
	}
}

// Store returns the cart store for a session, loading persisted state on
// first access.
func (s *CartService) Store(ctx context.Context, sessionID string) *CartStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	if store, exists := s.stores[sessionID]; exists {
		return store
	}

	store := &CartStore{
		storage: s.storage,
		key:     cartKeyPrefix + ":" + sessionID,
	}
	store.state = store.load(ctx)
	s.stores[sessionID] = store
	return store
}

// CartStore holds the cart state for one session. Every mutation persists
// the entire state before returning, so the in-memory and durable copies
// never diverge.
type CartStore struct {
	storage CartStorage
	key     string
	mu      sync.Mutex
	state   models.CartState
}

// load reads persisted state. Anything missing or unreadable falls back to
// an empty cart, never an error.
func (cs *CartStore) load(ctx context.Context) models.CartState {
	var state models.CartState
	if err := cs.storage.Get(ctx, cs.key, &state); err != nil {
		return models.CartState{Items: []models.CartItem{}, SavedItems: []models.CartItem{}}
	}
	if state.Items == nil {
		state.Items = []models.CartItem{}
	}
	if state.SavedItems == nil {
		state.SavedItems = []models.CartItem{}
	}
	return state
}

func (cs *CartStore) persist(ctx context.Context) error {
	return cs.storage.Set(ctx, cs.key, cs.state, 0)
}

// AddItem appends the item with quantity 1, or bumps the quantity when the
// ID is already in the cart. Name and price of an existing entry are left
// alone.
func (cs *CartStore) AddItem(ctx context.Context, item models.CartItem) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i := range cs.state.Items {
		if cs.state.Items[i].ID == item.ID {
			cs.state.Items[i].Quantity++
			return cs.persist(ctx)
		}
	}

	item.Quantity = 1
	cs.state.Items = append(cs.state.Items, item)
	return cs.persist(ctx)
}

// RemoveItem drops the item from the cart. No-op for unknown IDs.
func (cs *CartStore) RemoveItem(ctx context.Context, itemID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.state.Items = removeByID(cs.state.Items, itemID)
	return cs.persist(ctx)
}

// UpdateQuantity sets the quantity of an existing item. Anything below 1
// removes the item instead.
func (cs *CartStore) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if quantity < 1 {
		cs.state.Items = removeByID(cs.state.Items, itemID)
		return cs.persist(ctx)
	}

	for i := range cs.state.Items {
		if cs.state.Items[i].ID == itemID {
			cs.state.Items[i].Quantity = quantity
			break
		}
	}
	return cs.persist(ctx)
}

// ClearCart empties the cart. Saved items and checkout step are untouched.
func (cs *CartStore) ClearCart(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.state.Items = []models.CartItem{}
	return cs.persist(ctx)
}

// SaveForLater moves an item from the cart to the saved list.
func (cs *CartStore) SaveForLater(ctx context.Context, itemID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i, item := range cs.state.Items {
		if item.ID == itemID {
			cs.state.Items = append(cs.state.Items[:i], cs.state.Items[i+1:]...)
			cs.state.SavedItems = append(cs.state.SavedItems, item)
			return cs.persist(ctx)
		}
	}
	return nil
}

// MoveToCart moves a saved item back into the cart, keeping its original
// quantity and price.
func (cs *CartStore) MoveToCart(ctx context.Context, itemID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i, item := range cs.state.SavedItems {
		if item.ID == itemID {
			cs.state.SavedItems = append(cs.state.SavedItems[:i], cs.state.SavedItems[i+1:]...)
			cs.state.Items = append(cs.state.Items, item)
			return cs.persist(ctx)
		}
	}
	return nil
}

// RemoveSavedItem drops an item from the saved list.
func (cs *CartStore) RemoveSavedItem(ctx context.Context, itemID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.state.SavedItems = removeByID(cs.state.SavedItems, itemID)
	return cs.persist(ctx)
}

// SetCheckoutStep records the step without validating the transition; the
// checkout service owns transition rules.
func (cs *CartStore) SetCheckoutStep(ctx context.Context, step int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.state.CheckoutStep = step
	return cs.persist(ctx)
}

func (cs *CartStore) CheckoutStep() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state.CheckoutStep
}

// State returns a copy of the current cart state.
func (cs *CartStore) State() models.CartState {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	state := models.CartState{
		Items:        make([]models.CartItem, len(cs.state.Items)),
		SavedItems:   make([]models.CartItem, len(cs.state.SavedItems)),
		CheckoutStep: cs.state.CheckoutStep,
	}
	copy(state.Items, cs.state.Items)
	copy(state.SavedItems, cs.state.SavedItems)
	return state
}

// Subtotal is the sum of price times quantity over the cart items.
func (cs *CartStore) Subtotal() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var subtotal float64
	for _, item := range cs.state.Items {
		subtotal += item.Price * float64(item.Quantity)
	}
	return subtotal
}

// Total adds the flat shipping fee to a non-empty cart.
func (cs *CartStore) Total() float64 {
	subtotal := cs.Subtotal()
	if subtotal > 0 {
		return subtotal + ShippingFee
	}
	return 0
}

// ItemCount sums quantities across the cart items.
func (cs *CartStore) ItemCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	count := 0
	for _, item := range cs.state.Items {
		count += item.Quantity
	}
	return count
}

func removeByID(items []models.CartItem, itemID string) []models.CartItem {
	filtered := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != itemID {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
