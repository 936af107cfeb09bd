/*
handlers.go - HTTP API handlers for the circulation engine

PURPOSE:
  Exposes the circulation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Books:
    GET    /api/books                  List books (?available=true filters)
    POST   /api/books                  Register a book
    GET    /api/books/{id}             Get book details
    GET    /api/books/reservable       Fully-lent books with pending counts
    GET    /api/books/{id}/reservations Pending hold queue for a book

  Users:
    GET    /api/users                  List borrowers
    POST   /api/users                  Register a borrower
    GET    /api/users/{id}/loans       Loan history (?status=active filters)
    GET    /api/users/{id}/fines       Fine history

  Loans:
    POST   /api/loans                  Borrow a book
    POST   /api/loans/{id}/return      Return a book (fine assessed if late)

  Fines:
    POST   /api/fines/{id}/pay         Settle an outstanding fine

  Reservations:
    POST   /api/reservations           Place a hold on a fully-lent book
    POST   /api/reservations/{id}/cancel   Cancel a pending hold
    POST   /api/reservations/{id}/fulfill  Mark a pending hold fulfilled

  Demo:
    POST   /api/demo/seed              Load sample data
    POST   /api/demo/reset             Wipe all data (dev only)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Ledger/Fines/Reservations: Domain services

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Conflict (no copies, already returned, duplicate hold)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwise/circulation-engine/circulation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that support wiping all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        circulation.TxStore
	Ledger       *circulation.LoanLedger
	Fines        *circulation.FineCalculator
	Reservations *circulation.ReservationQueue
}

// NewHandler wires the domain services over the given store.
func NewHandler(store circulation.TxStore, clock circulation.Clock, policy circulation.LoanPolicy, schedule circulation.FineSchedule) *Handler {
	fines := circulation.NewFineCalculator(store, clock, schedule)
	return &Handler{
		Store:        store,
		Ledger:       circulation.NewLoanLedger(store, clock, policy, fines),
		Fines:        fines,
		Reservations: circulation.NewReservationQueue(store, clock),
	}
}

// =============================================================================
// BOOK HANDLERS
// =============================================================================

// ListBooks returns the catalog; ?available=true narrows to lendable titles.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	var (
		books []circulation.Book
		err   error
	)
	if strings.EqualFold(r.URL.Query().Get("available"), "true") {
		books, err = h.Store.ListAvailableBooks(r.Context())
	} else {
		books, err = h.Store.ListBooks(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list books", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTOs(books))
}

// GetBook returns a single catalog record.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	book, err := h.Store.GetBook(r.Context(), circulation.BookID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get book", err)
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "Book not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// CreateBook registers a new book.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	if req.AvailableCopies < 0 {
		writeError(w, http.StatusBadRequest, "available_copies cannot be negative", nil)
		return
	}

	book := circulation.Book{
		Title:           req.Title,
		ISBN:            req.ISBN,
		Year:            req.Year,
		Publisher:       req.Publisher,
		AvailableCopies: req.AvailableCopies,
		ShelfLocation:   req.ShelfLocation,
	}
	id, err := h.Store.InsertBook(r.Context(), book)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create book", err)
		return
	}
	book.ID = id
	writeJSON(w, http.StatusCreated, toBookDTO(book))
}

// ListReservableBooks returns fully-lent titles with their pending hold counts.
func (h *Handler) ListReservableBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Reservations.ListReservableBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservable books", err)
		return
	}

	dtos := make([]ReservableBookDTO, len(books))
	for i, rb := range books {
		dtos[i] = ReservableBookDTO{
			BookDTO:             toBookDTO(rb.Book),
			PendingReservations: rb.PendingCount,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListBookReservations returns the pending hold queue for a book, oldest first.
func (h *Handler) ListBookReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rs, err := h.Reservations.ListPendingReservations(r.Context(), circulation.BookID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservations", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTOs(rs))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all borrowers.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a new borrower.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	user := circulation.User{Name: req.Name}
	id, err := h.Store.InsertUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	user.ID = id
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// ListUserLoans returns a borrower's loans; ?status=active narrows to open ones.
func (h *Handler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var (
		loans []circulation.Loan
		err   error
	)
	if r.URL.Query().Get("status") == "active" {
		loans, err = h.Ledger.ListActiveLoans(r.Context(), circulation.UserID(id))
	} else {
		loans, err = h.Ledger.ListUserLoans(r.Context(), circulation.UserID(id))
	}
	if err != nil {
		writeDomainError(w, "Failed to list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// ListUserFines returns a borrower's fines, newest first.
func (h *Handler) ListUserFines(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	fines, err := h.Fines.ListUserFines(r.Context(), circulation.UserID(id))
	if err != nil {
		writeDomainError(w, "Failed to list fines", err)
		return
	}
	writeJSON(w, http.StatusOK, toFineDTOs(fines))
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// CreateLoan borrows a book: claims a copy and opens the loan atomically.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var dueDate circulation.Date
	if req.DueDate != "" {
		var err error
		dueDate, err = circulation.ParseDate(req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	loan, err := h.Ledger.CreateLoan(r.Context(),
		circulation.BookID(req.BookID), circulation.UserID(req.UserID), dueDate)
	if err != nil {
		writeDomainError(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(*loan))
}

// ReturnLoan closes a loan, restores the copy, and assesses any overdue fine.
func (h *Handler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	receipt, err := h.Ledger.ReturnLoan(r.Context(), circulation.LoanID(id))
	if err != nil {
		writeDomainError(w, "Failed to return loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnReceiptDTO(receipt))
}

// =============================================================================
// FINE HANDLERS
// =============================================================================

// PayFine settles an outstanding fine. Paying twice is a no-op.
func (h *Handler) PayFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	fine, err := h.Fines.PayFine(r.Context(), circulation.FineID(id))
	if err != nil {
		writeDomainError(w, "Failed to pay fine", err)
		return
	}
	writeJSON(w, http.StatusOK, toFineDTO(*fine))
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation places a hold on a book.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Reservations.Reserve(r.Context(),
		circulation.BookID(req.BookID), circulation.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(*res))
}

// CancelReservation cancels a pending hold.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.transitionReservation(w, r, h.Reservations.Cancel)
}

// FulfillReservation marks a pending hold fulfilled.
func (h *Handler) FulfillReservation(w http.ResponseWriter, r *http.Request) {
	h.transitionReservation(w, r, h.Reservations.Fulfill)
}

func (h *Handler) transitionReservation(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, circulation.ReservationID) (*circulation.Reservation, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := fn(r.Context(), circulation.ReservationID(id))
	if err != nil {
		writeDomainError(w, "Failed to update reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res))
}

// =============================================================================
// DEMO HANDLERS
// =============================================================================

// SeedDemo loads sample catalog, borrower, and loan data.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context(), w); err != nil {
		return
	}
	summary, err := SeedDemoData(r.Context(), h.Store, h.Ledger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ResetDemo wipes all data.
func (h *Handler) ResetDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context(), w); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetStore(ctx context.Context, w http.ResponseWriter) error {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return http.ErrNotSupported
	}
	if err := resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return err
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps circulation errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case circulation.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case circulation.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case circulation.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
