package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dreampuff/internal/assistant"
	"dreampuff/internal/domain"
	"dreampuff/internal/feed"
	"dreampuff/internal/middleware"
	"dreampuff/internal/service"
	"dreampuff/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var testIdentity = domain.Identity{UserID: uuid.MustParse("6f1c2a7e-3b1d-4c55-9a0e-2f4b8d9e1a10"), Role: "staff"}

// withSession stands in for AuthMiddleware and SessionGate
func withSession(info *domain.SessionInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithIdentity(r.Context(), testIdentity)
			if info != nil {
				ctx = session.WithInfo(ctx, *info)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func cashierSession() *domain.SessionInfo {
	return &domain.SessionInfo{Name: "Rina", Position: domain.PositionCashier, Active: true, StartedAt: time.Now()}
}

func serveJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newLedgerRouter(ledger service.LedgerService, info *domain.SessionInfo) chi.Router {
	router := chi.NewRouter()
	router.Use(withSession(info))
	NewLedgerHandler(ledger, zap.NewNop()).RegisterRoutes(router)
	return router
}

func TestLedgerHandler_RecordSale(t *testing.T) {
	puff := &domain.Product{ID: uuid.New(), Name: "Puff Cokelat", Stock: 8}
	ledger := newFakeLedger(puff)
	router := newLedgerRouter(ledger, cashierSession())

	w := serveJSON(router, http.MethodPost, "/sales", SaleRequest{Items: []SaleLineRequest{
		{ProductID: puff.ID.String(), Quantity: 3},
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var entry domain.SaleHistoryEntry
	json.NewDecoder(w.Body).Decode(&entry)
	if entry.TotalItems != 3 || entry.Name != "Rina" || entry.Position != domain.PositionCashier {
		t.Errorf("Unexpected sale entry: %+v", entry)
	}
	if got := ledger.stockOf(puff.ID); got != 5 {
		t.Errorf("Expected stock 5, got %d", got)
	}
}

func TestLedgerHandler_ShortageIsConflict(t *testing.T) {
	puff := &domain.Product{ID: uuid.New(), Name: "Puff Cokelat", Stock: 2}
	ledger := newFakeLedger(puff)
	router := newLedgerRouter(ledger, cashierSession())

	w := serveJSON(router, http.MethodPost, "/sales", SaleRequest{Items: []SaleLineRequest{
		{ProductID: puff.ID.String(), Quantity: 5},
	}})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}

	var resp middleware.ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Details["productName"] != "Puff Cokelat" || resp.Error.Details["available"] != float64(2) {
		t.Errorf("Expected shortage details, got %+v", resp.Error.Details)
	}
	if got := ledger.stockOf(puff.ID); got != 2 {
		t.Errorf("Expected stock to stay 2, got %d", got)
	}
}

func TestLedgerHandler_RequiresActiveSession(t *testing.T) {
	puff := &domain.Product{ID: uuid.New(), Name: "Puff", Stock: 2}
	router := newLedgerRouter(newFakeLedger(puff), nil)

	w := serveJSON(router, http.MethodPost, "/stock-additions", StockAdditionRequest{ProductID: puff.ID.String(), Quantity: 4})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}

	var resp middleware.ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Redirect != session.EntryPoint {
		t.Errorf("Expected redirect %q, got %q", session.EntryPoint, resp.Redirect)
	}
}

func TestLedgerHandler_AddStock(t *testing.T) {
	puff := &domain.Product{ID: uuid.New(), Name: "Puff", Stock: 2}
	ledger := newFakeLedger(puff)
	router := newLedgerRouter(ledger, cashierSession())

	w := serveJSON(router, http.MethodPost, "/stock-additions", StockAdditionRequest{ProductID: puff.ID.String(), Quantity: 4})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := ledger.stockOf(puff.ID); got != 6 {
		t.Errorf("Expected stock 6, got %d", got)
	}

	w = serveJSON(router, http.MethodPost, "/stock-additions", StockAdditionRequest{ProductID: puff.ID.String(), Quantity: 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero quantity, got %d", w.Code)
	}
}

func newSessionRouter(t *testing.T, sessions *fakeSessions) (chi.Router, *session.RedisFeed) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	notifications := session.NewRedisFeed(client)

	router := chi.NewRouter()
	router.Use(withSession(nil))
	NewSessionHandler(sessions, notifications, nil, zap.NewNop()).RegisterRoutes(router)
	return router, notifications
}

func TestSessionHandler_StartSession(t *testing.T) {
	sessions := &fakeSessions{decision: session.Decision{State: session.StateAwaitingStart}}
	router, _ := newSessionRouter(t, sessions)

	w := serveJSON(router, http.MethodPost, "/session", StartSessionRequest{Name: "Rina", Position: "Kitchen"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if sessions.started == nil || sessions.started.Position != domain.PositionKitchen {
		t.Errorf("Expected Kitchen session to be started, got %+v", sessions.started)
	}

	w = serveJSON(router, http.MethodPost, "/session", StartSessionRequest{Name: "Rina", Position: "Baker"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown position, got %d", w.Code)
	}
}

func TestSessionHandler_StartSessionAfterExpiry(t *testing.T) {
	sessions := &fakeSessions{decision: session.Decision{
		State:    session.StateSessionExpired,
		Message:  "Your session has ended",
		Redirect: session.EntryPoint,
	}}
	router, _ := newSessionRouter(t, sessions)

	w := serveJSON(router, http.MethodPost, "/session", StartSessionRequest{Name: "Rina", Position: "Cashier"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if sessions.started != nil {
		t.Error("Session must not start once the window has expired")
	}
}

func TestSessionHandler_DrainNotifications(t *testing.T) {
	router, notifications := newSessionRouter(t, &fakeSessions{})

	ctx := context.Background()
	notifications.Push(ctx, testIdentity.UserID, domain.Notification{Level: domain.NotificationInfo, Title: "first"})
	notifications.Push(ctx, testIdentity.UserID, domain.Notification{Level: domain.NotificationSuccess, Title: "second"})

	w := serveJSON(router, http.MethodGet, "/notifications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var drained []domain.Notification
	json.NewDecoder(w.Body).Decode(&drained)
	if len(drained) != 2 || drained[0].Title != "first" {
		t.Errorf("Expected both notifications oldest first, got %+v", drained)
	}

	w = serveJSON(router, http.MethodGet, "/notifications", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected drained feed to be empty, got %s", w.Body.String())
	}
}

type stubAssistant struct {
	reply *service.AssistantReply
	err   error
	asked string
}

func (s *stubAssistant) Ask(ctx context.Context, actor service.Actor, message string) (*service.AssistantReply, error) {
	s.asked = message
	return s.reply, s.err
}

func TestChatHandler(t *testing.T) {
	tests := []struct {
		name       string
		assistant  *stubAssistant
		body       interface{}
		wantStatus int
	}{
		{"reply", &stubAssistant{reply: &service.AssistantReply{Reply: "12 left"}}, ChatRequest{Message: "how many?"}, http.StatusOK},
		{"empty message", &stubAssistant{}, ChatRequest{}, http.StatusBadRequest},
		{"not configured", &stubAssistant{err: assistant.ErrNotConfigured}, ChatRequest{Message: "hi"}, http.StatusServiceUnavailable},
		{"upstream failure", &stubAssistant{err: assistant.ErrUpstreamFailed}, ChatRequest{Message: "hi"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := chi.NewRouter()
			router.Use(withSession(cashierSession()))
			NewChatHandler(tt.assistant, zap.NewNop()).RegisterRoutes(router)

			w := serveJSON(router, http.MethodPost, "/chat", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestProductHandler_StreamPushesSnapshots(t *testing.T) {
	hub := feed.NewHub()
	defer hub.Close()
	hub.Publish(feed.Snapshot{{ID: uuid.New(), Name: "Choux", Stock: 3}})

	router := chi.NewRouter()
	NewProductHandler(newFakeLedger(), hub, zap.NewNop()).RegisterRoutes(router, withSession(nil))

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/products/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	events := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	readSnapshot := func() feed.Snapshot {
		select {
		case data := <-events:
			var snapshot feed.Snapshot
			if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
				t.Fatalf("Invalid snapshot %q: %v", data, err)
			}
			return snapshot
		case <-ctx.Done():
			t.Fatal("Timed out waiting for snapshot")
			return nil
		}
	}

	if first := readSnapshot(); len(first) != 1 || first[0].Stock != 3 {
		t.Errorf("Expected latest snapshot on connect, got %+v", first)
	}

	hub.Publish(feed.Snapshot{{ID: uuid.New(), Name: "Choux", Stock: 1}})
	if next := readSnapshot(); len(next) != 1 || next[0].Stock != 1 {
		t.Errorf("Expected pushed snapshot, got %+v", next)
	}
}

func TestProductHandler_DeleteRequiresManagement(t *testing.T) {
	puff := &domain.Product{ID: uuid.New(), Name: "Puff", Stock: 2}
	ledger := newFakeLedger(puff)

	router := chi.NewRouter()
	router.Use(withSession(cashierSession()))
	NewProductHandler(ledger, feed.NewHub(), zap.NewNop()).RegisterRoutes(router,
		middleware.RequirePosition(zap.NewNop(), domain.PositionManagement))

	w := serveJSON(router, http.MethodDelete, "/products/"+puff.ID.String(), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for cashier, got %d", w.Code)
	}
	if _, err := ledger.GetProduct(context.Background(), puff.ID); err != nil {
		t.Error("Product must survive a forbidden delete")
	}
}

func TestReportHandler_CloseDayTwiceConflicts(t *testing.T) {
	reports := &fakeReports{}
	manager := &domain.SessionInfo{Name: "Dewi", Position: domain.PositionManagement, Active: true, StartedAt: time.Now()}

	router := chi.NewRouter()
	router.Use(withSession(manager))
	NewReportHandler(reports, time.UTC, zap.NewNop()).RegisterRoutes(router,
		middleware.RequirePosition(zap.NewNop(), domain.PositionManagement))

	if w := serveJSON(router, http.MethodPost, "/reports/close-day", nil); w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	reports.closeErr = service.ErrDayAlreadyClosed
	if w := serveJSON(router, http.MethodPost, "/reports/close-day", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for an already closed day, got %d", w.Code)
	}
}
