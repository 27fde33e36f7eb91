package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ErrTransactionNotFound is returned when no ledger entry matches the id.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionStore persists ledger entries. Business rules around them
// are out of scope; the endpoints exist to exercise the signed and
// idempotent request pipeline end to end.
type TransactionStore interface {
	Create(ctx context.Context, rec TransactionRecord) error
	Get(ctx context.Context, transactionID string) (TransactionRecord, error)
	ListByUser(ctx context.Context, userID string) ([]TransactionRecord, error)
}

// MemoryTransactionStore is a thread-safe in-memory TransactionStore.
type MemoryTransactionStore struct {
	mu   sync.RWMutex
	data map[string]TransactionRecord
}

var _ TransactionStore = (*MemoryTransactionStore)(nil)

// NewMemoryTransactionStore creates an empty MemoryTransactionStore.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{data: make(map[string]TransactionRecord)}
}

func (s *MemoryTransactionStore) Create(_ context.Context, rec TransactionRecord) error {
	s.mu.Lock()
	s.data[rec.TransactionID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryTransactionStore) Get(_ context.Context, transactionID string) (TransactionRecord, error) {
	s.mu.RLock()
	rec, ok := s.data[transactionID]
	s.mu.RUnlock()
	if !ok {
		return TransactionRecord{}, ErrTransactionNotFound
	}
	return rec, nil
}

func (s *MemoryTransactionStore) ListByUser(_ context.Context, userID string) ([]TransactionRecord, error) {
	s.mu.RLock()
	var out []TransactionRecord
	for _, rec := range s.data {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	// Newest first, matching the postgres store's ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListTransactions handles GET /transactions/records. Records come back
// newest first, a page at a time.
func (a *API) ListTransactions(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r.Context())
	records, err := a.transactions.ListByUser(r.Context(), rc.UserID)
	if err != nil {
		mapError(w, err)
		return
	}

	page, pageSize := parsePage(r)
	start, end := pageBounds(len(records), page, pageSize)
	items := records[start:end]
	if items == nil {
		items = []TransactionRecord{}
	}
	writeOK(w, ListTransactionsResponse{
		Page:     page,
		PageSize: pageSize,
		Items:    items,
		Total:    len(records),
	})
}

// GetTransaction handles GET /transactions/{transactionID}.
func (a *API) GetTransaction(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r.Context())
	rec, err := a.transactions.Get(r.Context(), chi.URLParam(r, "transactionID"))
	if errors.Is(err, ErrTransactionNotFound) || (err == nil && rec.UserID != rc.UserID) {
		writeFail(w, codeNotFound, "transaction not found")
		return
	}
	if err != nil {
		mapError(w, err)
		return
	}
	writeOK(w, rec)
}

// CreateTransaction handles POST /transactions. It always runs inside the
// Idempotent wrapper, so a duplicate delivery replays the stored envelope
// instead of reaching this handler.
func (a *API) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestContextFrom(ctx)

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, codeBadRequest, "malformed request body")
		return
	}
	if req.Amount == 0 {
		writeFail(w, codeBadRequest, "amount is required")
		return
	}

	rec := TransactionRecord{
		TransactionID: uuid.NewString(),
		UserID:        rc.UserID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.transactions.Create(ctx, rec); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(ctx, NewAuditRecord(AuditTransactionCreated).
		WithRequest(rc).
		WithResource("transaction", rec.TransactionID))
	writeOK(w, rec)
}
