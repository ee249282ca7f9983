package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"dreampuff/internal/domain"
	"dreampuff/internal/repository"
	"dreampuff/internal/service"
	"dreampuff/internal/session"

	"github.com/google/uuid"
)

// Mock repositories for the real AuthService
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			n++
		}
	}
	return n, nil
}

// fakeSessions records lifecycle calls
type fakeSessions struct {
	mu        sync.Mutex
	signedIn  []domain.Identity
	signedOut []domain.Identity
	decision  session.Decision
	started   *domain.SessionInfo
	startErr  error
}

func (f *fakeSessions) SignedIn(ctx context.Context, identity domain.Identity, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = append(f.signedIn, identity)
	return nil
}

func (f *fakeSessions) Check(ctx context.Context, identity *domain.Identity, now time.Time) (session.Decision, error) {
	if identity == nil {
		return session.Decision{State: session.StateUnauthenticated, Redirect: session.EntryPoint}, nil
	}
	return f.decision, nil
}

func (f *fakeSessions) StartSession(ctx context.Context, identity *domain.Identity, name string, position domain.Position) (*domain.SessionInfo, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = &domain.SessionInfo{Name: name, Position: position, Active: true, StartedAt: time.Now()}
	return f.started, nil
}

func (f *fakeSessions) SignOut(ctx context.Context, identity domain.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, identity)
}

// fakeLedger is an in-memory LedgerService with all-or-nothing batch semantics
type fakeLedger struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	sales    []*domain.SaleHistoryEntry
	totals   domain.StockTotals
}

func newFakeLedger(products ...*domain.Product) *fakeLedger {
	l := &fakeLedger{products: make(map[uuid.UUID]*domain.Product)}
	for _, p := range products {
		l.products[p.ID] = p
	}
	return l
}

func (l *fakeLedger) stockOf(id uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.products[id].Stock
}

func (l *fakeLedger) RecordSale(ctx context.Context, actor service.Actor, lines []domain.SaleLine) (*domain.SaleHistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := &domain.SaleHistoryEntry{ID: uuid.New(), SessionSnapshot: actor.Session, CreatedAt: time.Now()}
	for _, line := range lines {
		p, ok := l.products[line.ProductID]
		if !ok {
			return nil, repository.ErrProductNotFound
		}
		if line.Quantity > p.Stock {
			return nil, &repository.StockShortageError{ProductID: p.ID, ProductName: p.Name, Requested: line.Quantity, Available: p.Stock}
		}
		entry.Items = append(entry.Items, domain.SaleItem{ProductID: p.ID, ProductName: p.Name, Quantity: line.Quantity})
		entry.TotalItems += line.Quantity
	}
	for _, line := range lines {
		l.products[line.ProductID].Stock -= line.Quantity
	}
	l.sales = append(l.sales, entry)
	return entry, nil
}

func (l *fakeLedger) AddStock(ctx context.Context, actor service.Actor, productID uuid.UUID, quantity int) (*domain.StockUpdateHistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p.Stock += quantity
	return &domain.StockUpdateHistoryEntry{
		ID:              uuid.New(),
		SessionSnapshot: actor.Session,
		ProductID:       productID,
		ProductName:     p.Name,
		QuantityAdded:   quantity,
		StockAfter:      p.Stock,
	}, nil
}

func (l *fakeLedger) AdjustStock(ctx context.Context, actor service.Actor, productID uuid.UUID, delta int) error {
	if delta > 0 {
		_, err := l.AddStock(ctx, actor, productID, delta)
		return err
	}
	_, err := l.RecordSale(ctx, actor, []domain.SaleLine{{ProductID: productID, Quantity: -delta}})
	return err
}

func (l *fakeLedger) SetStock(ctx context.Context, updates []domain.StockUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range updates {
		if _, ok := l.products[u.ID]; !ok {
			return repository.ErrProductNotFound
		}
	}
	for _, u := range updates {
		l.products[u.ID].Stock = u.Stock
	}
	return nil
}

func (l *fakeLedger) SetStockByName(ctx context.Context, name string, stock int) (*domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.products {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			p.Stock = stock
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (l *fakeLedger) CreateProduct(ctx context.Context, name string, stock int, image string, category domain.Category) (*domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &domain.Product{ID: uuid.New(), Name: name, Stock: stock, Image: image, Category: category}
	l.products[p.ID] = p
	return p, nil
}

func (l *fakeLedger) ListProducts(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list []*domain.Product
	for _, p := range l.products {
		if category == nil || p.Category == *category {
			copied := *p
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (l *fakeLedger) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (l *fakeLedger) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(l.products, id)
	return nil
}

func (l *fakeLedger) CategorySummaries(ctx context.Context) ([]domain.CategorySummary, error) {
	return nil, nil
}

func (l *fakeLedger) RecentSales(ctx context.Context, limit int) ([]domain.SaleHistoryEntry, error) {
	return nil, nil
}

func (l *fakeLedger) RecentStockUpdates(ctx context.Context, limit int) ([]domain.StockUpdateHistoryEntry, error) {
	return nil, nil
}

func (l *fakeLedger) StockTotals(ctx context.Context, hours int) (*domain.StockTotals, error) {
	totals := l.totals
	totals.TimeframeHours = hours
	return &totals, nil
}

type fakeReports struct {
	views    []service.ReportView
	limit    int
	closeErr error
}

func (f *fakeReports) Summary(ctx context.Context, start, end time.Time) (*service.ReportSummary, error) {
	return &service.ReportSummary{Start: start, End: end}, nil
}

func (f *fakeReports) Recent(ctx context.Context, limit int) ([]service.ReportView, error) {
	f.limit = limit
	return f.views, nil
}

func (f *fakeReports) CloseDay(ctx context.Context, at time.Time) (*domain.DailyReport, error) {
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	return &domain.DailyReport{ID: uuid.New(), SessionSnapshot: service.DailyResetSession}, nil
}
