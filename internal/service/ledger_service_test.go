package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/repository"
	"dreampuff/internal/session"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// mockProductStore backs both the product and ledger repository mocks
type mockProductStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	sales    []*domain.SaleHistoryEntry
	updates  []*domain.StockUpdateHistoryEntry
	writes   int
}

func newMockProductStore(products ...*domain.Product) *mockProductStore {
	store := &mockProductStore{products: make(map[uuid.UUID]*domain.Product)}
	for _, p := range products {
		store.products[p.ID] = p
	}
	return store
}

func (m *mockProductStore) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if equalFoldTrim(p.Name, product.Name) {
			return repository.ErrProductNameTaken
		}
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockProductStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProductStore) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[uuid.UUID]*domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			copied := *p
			found[id] = &copied
		}
	}
	return found, nil
}

func (m *mockProductStore) FindByName(ctx context.Context, name string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if equalFoldTrim(p.Name, name) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductStore) List(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*domain.Product
	for _, p := range m.products {
		if category == nil || p.Category == *category {
			copied := *p
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (m *mockProductStore) ApplySale(ctx context.Context, entry *domain.SaleHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range entry.Items {
		p, ok := m.products[item.ProductID]
		if !ok {
			return repository.ErrProductNotFound
		}
		if item.Quantity > p.Stock {
			return &repository.StockShortageError{ProductID: p.ID, ProductName: p.Name, Requested: item.Quantity, Available: p.Stock}
		}
	}
	for _, item := range entry.Items {
		m.products[item.ProductID].Stock -= item.Quantity
	}
	entry.CreatedAt = time.Now()
	m.sales = append(m.sales, entry)
	m.writes++
	return nil
}

func (m *mockProductStore) ApplyStockAddition(ctx context.Context, entry *domain.StockUpdateHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[entry.ProductID]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Stock += entry.QuantityAdded
	entry.ProductName = p.Name
	entry.StockAfter = p.Stock
	entry.CreatedAt = time.Now()
	m.updates = append(m.updates, entry)
	m.writes++
	return nil
}

func (m *mockProductStore) SetStock(ctx context.Context, updates []domain.StockUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if _, ok := m.products[u.ID]; !ok {
			return repository.ErrProductNotFound
		}
	}
	for _, u := range updates {
		m.products[u.ID].Stock = u.Stock
	}
	m.writes++
	return nil
}

func (m *mockProductStore) SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if equalFoldTrim(p.Name, name) {
			p.Stock = stock
			m.writes++
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductStore) CloseDay(ctx context.Context, report *domain.DailyReport, since, until time.Time) error {
	return errors.New("not used")
}

func (m *mockProductStore) stockOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

type mockHistoryRepository struct {
	since    time.Time
	stockIn  int
	stockOut int
	limit    int
}

func (m *mockHistoryRepository) RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error) {
	m.limit = limit
	return nil, nil
}

func (m *mockHistoryRepository) RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error) {
	m.limit = limit
	return nil, nil
}

func (m *mockHistoryRepository) StockTotalsSince(ctx context.Context, since time.Time) (int, int, error) {
	m.since = since
	return m.stockIn, m.stockOut, nil
}

type mockCategoryRepository struct{}

func (mockCategoryRepository) Summaries(ctx context.Context) ([]domain.CategorySummary, error) {
	return []domain.CategorySummary{{Category: domain.CategoryPuff, ProductCount: 1, TotalStock: 3}}, nil
}

// mockSaveGuard mirrors the Redis guard semantics in memory
type mockSaveGuard struct {
	mu     sync.Mutex
	held   map[uuid.UUID]bool
	denied int
}

func newMockSaveGuard() *mockSaveGuard {
	return &mockSaveGuard{held: make(map[uuid.UUID]bool)}
}

func (g *mockSaveGuard) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[userID] {
		g.denied++
		return nil, session.ErrSaveInProgress
	}
	g.held[userID] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, userID)
	}, nil
}

func newTestProduct(name string, stock int) *domain.Product {
	return &domain.Product{
		ID:       uuid.New(),
		Name:     name,
		Stock:    stock,
		Image:    "https://img.example/" + name + ".png",
		Category: domain.CategoryPuff,
	}
}

func newTestLedgerService(store *mockProductStore) (LedgerService, *mockHistoryRepository, *mockSaveGuard) {
	history := &mockHistoryRepository{}
	guard := newMockSaveGuard()
	svc := NewLedgerService(store, mockCategoryRepository{}, store, history, guard, zap.NewNop())
	return svc, history, guard
}

var testActor = Actor{
	UserID:  uuid.MustParse("7b0cf0f5-3c8e-4c5e-9a55-0d1f5a9d4e21"),
	Session: domain.SessionSnapshot{Name: "Rina", Position: domain.PositionCashier},
}

func TestRecordSale_DecrementsAndRecordsHistory(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	choux := newTestProduct("Choux", 5)
	store := newMockProductStore(puff, choux)
	svc, _, _ := newTestLedgerService(store)

	entry, err := svc.RecordSale(context.Background(), testActor, []domain.SaleLine{
		{ProductID: puff.ID, Quantity: 3},
		{ProductID: choux.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if store.stockOf(puff.ID) != 7 || store.stockOf(choux.ID) != 3 {
		t.Errorf("Unexpected stock: puff=%d choux=%d", store.stockOf(puff.ID), store.stockOf(choux.ID))
	}
	if entry.TotalItems != 5 || len(entry.Items) != 2 {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Items[0].ProductName != "Puff" || entry.Items[1].ProductName != "Choux" {
		t.Errorf("Expected items in request order, got %+v", entry.Items)
	}
	if entry.SessionSnapshot != testActor.Session {
		t.Errorf("Expected session snapshot %+v, got %+v", testActor.Session, entry.SessionSnapshot)
	}
	if len(store.sales) != 1 {
		t.Errorf("Expected exactly one sale history entry, got %d", len(store.sales))
	}
}

func TestRecordSale_MergesDuplicatesAndDropsZeros(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	eclair := newTestProduct("Eclair", 4)
	store := newMockProductStore(puff, eclair)
	svc, _, _ := newTestLedgerService(store)

	entry, err := svc.RecordSale(context.Background(), testActor, []domain.SaleLine{
		{ProductID: puff.ID, Quantity: 2},
		{ProductID: eclair.ID, Quantity: 0},
		{ProductID: puff.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if len(entry.Items) != 1 || entry.Items[0].Quantity != 3 {
		t.Errorf("Expected one merged item of 3, got %+v", entry.Items)
	}
	if store.stockOf(eclair.ID) != 4 {
		t.Errorf("Zero quantity line must not touch stock")
	}
}

func TestRecordSale_RejectsInvalidInput(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	store := newMockProductStore(puff)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	if _, err := svc.RecordSale(ctx, testActor, nil); err != ErrEmptySale {
		t.Errorf("Expected ErrEmptySale for no lines, got %v", err)
	}
	if _, err := svc.RecordSale(ctx, testActor, []domain.SaleLine{{ProductID: puff.ID, Quantity: 0}}); err != ErrEmptySale {
		t.Errorf("Expected ErrEmptySale for only zero lines, got %v", err)
	}
	if _, err := svc.RecordSale(ctx, testActor, []domain.SaleLine{{ProductID: puff.ID, Quantity: -1}}); err != ErrInvalidQuantity {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.RecordSale(ctx, testActor, []domain.SaleLine{{ProductID: uuid.New(), Quantity: 1}}); !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
	if store.writes != 0 {
		t.Errorf("Expected no writes, got %d", store.writes)
	}
}

func TestRecordSale_ShortageNamesProductAndWritesNothing(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	choux := newTestProduct("Choux", 1)
	store := newMockProductStore(puff, choux)
	svc, _, _ := newTestLedgerService(store)

	_, err := svc.RecordSale(context.Background(), testActor, []domain.SaleLine{
		{ProductID: puff.ID, Quantity: 2},
		{ProductID: choux.ID, Quantity: 3},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	var shortage *repository.StockShortageError
	if !errors.As(err, &shortage) || shortage.ProductName != "Choux" || shortage.Available != 1 {
		t.Errorf("Expected shortage naming Choux, got %v", err)
	}
	if store.writes != 0 || store.stockOf(puff.ID) != 10 {
		t.Errorf("Expected nothing written, writes=%d puff=%d", store.writes, store.stockOf(puff.ID))
	}
}

// Feature: dreampuff-stock, Property 19: stock never goes negative through the ledger
func TestProperty_SalesNeverDriveStockNegative(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a sale either applies fully within stock or changes nothing", prop.ForAll(
		func(stocks []int, quantities []int) bool {
			var products []*domain.Product
			for i, stock := range stocks {
				products = append(products, newTestProduct("P"+string(rune('A'+i)), stock))
			}
			store := newMockProductStore(products...)
			svc, _, _ := newTestLedgerService(store)

			var lines []domain.SaleLine
			for i, q := range quantities {
				lines = append(lines, domain.SaleLine{ProductID: products[i%len(products)].ID, Quantity: q})
			}

			before := make(map[uuid.UUID]int)
			for _, p := range products {
				before[p.ID] = p.Stock
			}

			_, err := svc.RecordSale(context.Background(), testActor, lines)

			for _, p := range products {
				after := store.stockOf(p.ID)
				if after < 0 {
					t.Logf("FAIL: negative stock %d for %s", after, p.Name)
					return false
				}
				if err != nil && after != before[p.ID] {
					t.Logf("FAIL: failed sale changed stock of %s", p.Name)
					return false
				}
			}
			if err != nil && store.writes != 0 {
				return false
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(0, 10)),
		gen.SliceOfN(4, gen.IntRange(0, 8)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRecordSale_SaveInProgress(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	store := newMockProductStore(puff)
	svc, _, guard := newTestLedgerService(store)

	release, err := guard.Acquire(context.Background(), testActor.UserID)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	_, err = svc.RecordSale(context.Background(), testActor, []domain.SaleLine{{ProductID: puff.ID, Quantity: 1}})
	if err != session.ErrSaveInProgress {
		t.Fatalf("Expected ErrSaveInProgress, got %v", err)
	}
	if store.stockOf(puff.ID) != 10 {
		t.Error("Rejected save must not change stock")
	}
}

func TestRecordSale_ReleasesGuard(t *testing.T) {
	puff := newTestProduct("Puff", 10)
	store := newMockProductStore(puff)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordSale(ctx, testActor, []domain.SaleLine{{ProductID: puff.ID, Quantity: 1}}); err != nil {
			t.Fatalf("Sale %d failed: %v", i, err)
		}
	}
	if store.stockOf(puff.ID) != 7 {
		t.Errorf("Expected stock 7, got %d", store.stockOf(puff.ID))
	}
}

func TestAddStock(t *testing.T) {
	puff := newTestProduct("Puff", 2)
	store := newMockProductStore(puff)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	entry, err := svc.AddStock(ctx, testActor, puff.ID, 5)
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if entry.StockAfter != 7 || entry.QuantityAdded != 5 || entry.ProductName != "Puff" {
		t.Errorf("Unexpected entry: %+v", entry)
	}

	if _, err := svc.AddStock(ctx, testActor, puff.ID, 0); err != ErrInvalidQuantity {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.AddStock(ctx, testActor, uuid.New(), 1); !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	puff := newTestProduct("Puff", 5)
	store := newMockProductStore(puff)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	if err := svc.AdjustStock(ctx, testActor, puff.ID, 4); err != nil {
		t.Fatalf("Positive adjust failed: %v", err)
	}
	if err := svc.AdjustStock(ctx, testActor, puff.ID, -6); err != nil {
		t.Fatalf("Negative adjust failed: %v", err)
	}
	if store.stockOf(puff.ID) != 3 {
		t.Errorf("Expected stock 3, got %d", store.stockOf(puff.ID))
	}
	if len(store.updates) != 1 || len(store.sales) != 1 {
		t.Errorf("Expected one addition and one sale, got %d and %d", len(store.updates), len(store.sales))
	}

	if err := svc.AdjustStock(ctx, testActor, puff.ID, 0); err != ErrInvalidQuantity {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if err := svc.AdjustStock(ctx, testActor, puff.ID, -10); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock, got %v", err)
	}
}

func TestSetStock(t *testing.T) {
	puff := newTestProduct("Puff", 5)
	choux := newTestProduct("Choux", 5)
	store := newMockProductStore(puff, choux)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	err := svc.SetStock(ctx, []domain.StockUpdate{{ID: puff.ID, Stock: 9}, {ID: choux.ID, Stock: 0}})
	if err != nil {
		t.Fatalf("SetStock failed: %v", err)
	}
	if store.stockOf(puff.ID) != 9 || store.stockOf(choux.ID) != 0 {
		t.Error("Expected overridden stock")
	}

	if err := svc.SetStock(ctx, nil); err != ErrEmptyBatch {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
	if err := svc.SetStock(ctx, []domain.StockUpdate{{ID: puff.ID, Stock: -1}}); err != repository.ErrNegativeStock {
		t.Errorf("Expected ErrNegativeStock, got %v", err)
	}
	err = svc.SetStock(ctx, []domain.StockUpdate{{ID: puff.ID, Stock: 1}, {ID: uuid.New(), Stock: 1}})
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
	if store.stockOf(puff.ID) != 9 {
		t.Error("Aborted batch must not change stock")
	}
}

func TestSetStockByName(t *testing.T) {
	puff := newTestProduct("Puff Cokelat", 5)
	store := newMockProductStore(puff)
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	product, err := svc.SetStockByName(ctx, "  puff cokelat ", 12)
	if err != nil {
		t.Fatalf("SetStockByName failed: %v", err)
	}
	if product.Stock != 12 {
		t.Errorf("Expected stock 12, got %d", product.Stock)
	}

	if _, err := svc.SetStockByName(ctx, "Croissant", 1); !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
	if _, err := svc.SetStockByName(ctx, " ", 1); err != ErrNameRequired {
		t.Errorf("Expected ErrNameRequired, got %v", err)
	}
}

func TestCreateProduct_Validation(t *testing.T) {
	store := newMockProductStore()
	svc, _, _ := newTestLedgerService(store)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, "  Bolu Pandan ", 8, "", domain.CategoryCake)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if product.Name != "Bolu Pandan" {
		t.Errorf("Expected trimmed name, got %q", product.Name)
	}

	if _, err := svc.CreateProduct(ctx, "bolu pandan", 1, "", domain.CategoryCake); err != repository.ErrProductNameTaken {
		t.Errorf("Expected ErrProductNameTaken, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, "Roti", 1, "", domain.Category("snack")); err != ErrInvalidCategory {
		t.Errorf("Expected ErrInvalidCategory, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, "Roti", -1, "", domain.CategoryBread); err != repository.ErrNegativeStock {
		t.Errorf("Expected ErrNegativeStock, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, "", 1, "", domain.CategoryBread); err != ErrNameRequired {
		t.Errorf("Expected ErrNameRequired, got %v", err)
	}
}

func TestStockTotals(t *testing.T) {
	store := newMockProductStore()
	svc, history, _ := newTestLedgerService(store)
	history.stockIn, history.stockOut = 12, 7

	fixed := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	svc.(*ledgerService).now = func() time.Time { return fixed }

	totals, err := svc.StockTotals(context.Background(), 24)
	if err != nil {
		t.Fatalf("StockTotals failed: %v", err)
	}
	if *totals != (domain.StockTotals{TotalStockIn: 12, TotalStockOut: 7, TimeframeHours: 24}) {
		t.Errorf("Unexpected totals: %+v", totals)
	}
	if !history.since.Equal(fixed.Add(-24 * time.Hour)) {
		t.Errorf("Expected window start %v, got %v", fixed.Add(-24*time.Hour), history.since)
	}

	if _, err := svc.StockTotals(context.Background(), 0); err != ErrInvalidTimeframe {
		t.Errorf("Expected ErrInvalidTimeframe, got %v", err)
	}
}

func TestRecentHistory_ClampsLimit(t *testing.T) {
	svc, history, _ := newTestLedgerService(newMockProductStore())
	ctx := context.Background()

	svc.RecentSales(ctx, 0)
	if history.limit != defaultHistoryLimit {
		t.Errorf("Expected default limit, got %d", history.limit)
	}
	svc.RecentStockUpdates(ctx, 10000)
	if history.limit != maxHistoryLimit {
		t.Errorf("Expected max limit, got %d", history.limit)
	}
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
