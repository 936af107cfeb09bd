package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/circulation-engine/api"
	"github.com/shelfwise/circulation-engine/circulation"
	"github.com/shelfwise/circulation-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testDay = circulation.NewDate(2025, time.March, 10)

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(store, circulation.FixedClock{Day: testDay},
		circulation.DefaultLoanPolicy(), circulation.DefaultFineSchedule())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createBook(t *testing.T, srv *httptest.Server, title string, copies int) int64 {
	var book map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/books", map[string]any{
		"title":            title,
		"available_copies": copies,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(book["id"].(float64))
}

func createUser(t *testing.T, srv *httptest.Server, name string) int64 {
	var user map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/users", map[string]any{"name": name}, &user)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(user["id"].(float64))
}

// =============================================================================
// LOAN FLOW TESTS
// =============================================================================

func TestAPI_BorrowAndReturn_FullCycle(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "The Go Programming Language", 1)
	userID := createUser(t, srv, "Ana")

	// Borrow
	var loan map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID,
	}, &loan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "active", loan["status"])
	assert.Equal(t, "2025-03-24", loan["due_date"], "defaults to a 14-day term")

	// Book now exhausted
	var book map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/books/%d", bookID), nil, &book)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, book["available_copies"])

	// Return
	loanID := int64(loan["id"].(float64))
	var receipt map[string]any
	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), nil, &receipt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, receipt["overdue_days"])
	assert.Nil(t, receipt["fine"])

	// Copy restored
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/books/%d", bookID), nil, &book)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, book["available_copies"])
}

func TestAPI_Borrow_NoCopies_Conflict(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "The Pragmatic Programmer", 1)
	ana := createUser(t, srv, "Ana")
	bruno := createUser(t, srv, "Bruno")

	resp := doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": ana,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var errResp map[string]any
	resp = doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": bruno,
	}, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, errResp["error"])
}

func TestAPI_Borrow_BadDueDate_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "SICP", 1)
	userID := createUser(t, srv, "Ana")

	// Malformed date string
	resp := doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID, "due_date": "10/03/2025",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Valid format, outside the window
	resp = doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID, "due_date": "2025-05-10",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Return_Twice_Conflict(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "Clean Architecture", 1)
	userID := createUser(t, srv, "Carla")

	var loan map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID,
	}, &loan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	loanID := int64(loan["id"].(float64))

	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Return_UnknownLoan_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/loans/42/return", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_UserLoans_StatusFilter(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "Database Internals", 2)
	userID := createUser(t, srv, "Bruno")

	var first map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID,
	}, &first)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, srv, http.MethodPost, "/api/loans", map[string]any{
		"book_id": bookID, "user_id": userID,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	firstID := int64(first["id"].(float64))
	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", firstID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active []map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/users/%d/loans?status=active", userID), nil, &active)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, active, 1)

	var all []map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/users/%d/loans", userID), nil, &all)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, all, 2)
}

// =============================================================================
// RESERVATION FLOW TESTS
// =============================================================================

func TestAPI_Reservation_DuplicateHold_Conflict(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "The Pragmatic Programmer", 0)
	userID := createUser(t, srv, "Ana")

	body := map[string]any{"book_id": bookID, "user_id": userID}

	var res map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/reservations", body, &res)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", res["status"])

	resp = doJSON(t, srv, http.MethodPost, "/api/reservations", body, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Reservation_CancelThenCancel(t *testing.T) {
	srv := newTestServer(t)

	bookID := createBook(t, srv, "SICP", 0)
	userID := createUser(t, srv, "Bruno")

	var res map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/reservations", map[string]any{
		"book_id": bookID, "user_id": userID,
	}, &res)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resID := int64(res["id"].(float64))

	var cancelled map[string]any
	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/reservations/%d/cancel", resID), nil, &cancelled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", cancelled["status"])

	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/reservations/%d/cancel", resID), nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ReservableBooks_PendingCounts(t *testing.T) {
	srv := newTestServer(t)

	gone := createBook(t, srv, "Clean Architecture", 0)
	createBook(t, srv, "SICP", 3)
	userID := createUser(t, srv, "Carla")

	resp := doJSON(t, srv, http.MethodPost, "/api/reservations", map[string]any{
		"book_id": gone, "user_id": userID,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reservable []map[string]any
	resp = doJSON(t, srv, http.MethodGet, "/api/books/reservable", nil, &reservable)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, reservable, 1)
	assert.EqualValues(t, gone, reservable[0]["id"])
	assert.EqualValues(t, 1, reservable[0]["pending_reservations"])
}

// =============================================================================
// FINE FLOW TESTS
// =============================================================================

func TestAPI_PayFine_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/fines/404/pay", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestAPI_ListBooks_AvailableFilter(t *testing.T) {
	srv := newTestServer(t)

	createBook(t, srv, "Database Internals", 2)
	createBook(t, srv, "The Pragmatic Programmer", 0)

	var all []map[string]any
	resp := doJSON(t, srv, http.MethodGet, "/api/books", nil, &all)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, all, 2)

	var available []map[string]any
	resp = doJSON(t, srv, http.MethodGet, "/api/books?available=true", nil, &available)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, available, 1)
	assert.Equal(t, "Database Internals", available[0]["title"])
}

func TestAPI_CreateBook_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/books", map[string]any{
		"available_copies": 2,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "title is required")

	resp = doJSON(t, srv, http.MethodPost, "/api/books", map[string]any{
		"title": "Negative", "available_copies": -1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// DEMO TESTS
// =============================================================================

func TestAPI_DemoSeed_ThenReset(t *testing.T) {
	srv := newTestServer(t)

	var summary map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/demo/seed", nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "seeded", summary["status"])
	assert.EqualValues(t, 6, summary["books"])
	assert.EqualValues(t, 1, summary["fines"])

	resp = doJSON(t, srv, http.MethodPost, "/api/demo/reset", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var books []map[string]any
	resp = doJSON(t, srv, http.MethodGet, "/api/books", nil, &books)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, books)
}

func TestAPI_DemoSeed_LateBorrowerHistory(t *testing.T) {
	// The overdue lifecycle seeds exactly one loan for the late borrower:
	// the returned loan behind the fine. No extra completed loans appear.

	srv := newTestServer(t)

	var summary map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/demo/seed", nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, summary["loans"])

	var loans []map[string]any
	resp = doJSON(t, srv, http.MethodGet, "/api/users/4/loans", nil, &loans)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, loans, 1)
	assert.Equal(t, "returned", loans[0]["status"])

	var fines []map[string]any
	resp = doJSON(t, srv, http.MethodGet, "/api/users/4/fines", nil, &fines)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fines, 1)
	assert.Equal(t, "10.00", fines[0]["amount"])
	assert.Equal(t, "owed", fines[0]["status"])
}
