/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Catalog:
    BookDTO, CreateBookRequest, ReservableBookDTO

  Users:
    UserDTO, CreateUserRequest

  Loans:
    LoanDTO, CreateLoanRequest, ReturnReceiptDTO

  Fines:
    FineDTO

  Reservations:
    ReservationDTO, CreateReservationRequest

DATES AND MONEY:
  All dates are civil dates formatted as YYYY-MM-DD. Fine amounts are
  decimal strings ("4.00"), never floats - money does not round-trip
  through float64.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - circulation/types.go: Domain types these mirror
*/
package api

import (
	"github.com/shelfwise/circulation-engine/circulation"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BookDTO represents a catalog record in API responses.
type BookDTO struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	ISBN            string `json:"isbn,omitempty"`
	Year            int    `json:"year,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	AvailableCopies int    `json:"available_copies"`
	ShelfLocation   string `json:"shelf_location,omitempty"`
}

// CreateBookRequest is the request to register a book.
type CreateBookRequest struct {
	Title           string `json:"title"`
	ISBN            string `json:"isbn"`
	Year            int    `json:"year"`
	Publisher       string `json:"publisher"`
	AvailableCopies int    `json:"available_copies"`
	ShelfLocation   string `json:"shelf_location"`
}

// ReservableBookDTO is a fully-lent book with its pending hold count.
type ReservableBookDTO struct {
	BookDTO
	PendingReservations int `json:"pending_reservations"`
}

// UserDTO represents a borrower in API responses.
type UserDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateUserRequest is the request to register a borrower.
type CreateUserRequest struct {
	Name string `json:"name"`
}

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID         int64   `json:"id"`
	BookID     int64   `json:"book_id"`
	UserID     int64   `json:"user_id"`
	LoanDate   string  `json:"loan_date"`
	DueDate    string  `json:"due_date"`
	ReturnedOn *string `json:"returned_on,omitempty"`
	Status     string  `json:"status"`
}

// CreateLoanRequest is the request to borrow a book. DueDate is optional;
// when empty the loan-term default applies.
type CreateLoanRequest struct {
	BookID  int64  `json:"book_id"`
	UserID  int64  `json:"user_id"`
	DueDate string `json:"due_date,omitempty"`
}

// ReturnReceiptDTO is the response after returning a book.
type ReturnReceiptDTO struct {
	Loan        LoanDTO  `json:"loan"`
	OverdueDays int      `json:"overdue_days"`
	Fine        *FineDTO `json:"fine,omitempty"`
}

// FineDTO represents an overdue fine.
type FineDTO struct {
	ID          int64   `json:"id"`
	LoanID      int64   `json:"loan_id"`
	Amount      string  `json:"amount"`
	Status      string  `json:"status"`
	GeneratedOn string  `json:"generated_on"`
	PaidOn      *string `json:"paid_on,omitempty"`
}

// ReservationDTO represents a hold on a fully-lent book.
type ReservationDTO struct {
	ID         int64  `json:"id"`
	BookID     int64  `json:"book_id"`
	UserID     int64  `json:"user_id"`
	ReservedOn string `json:"reserved_on"`
	Status     string `json:"status"`
}

// CreateReservationRequest is the request to place a hold.
type CreateReservationRequest struct {
	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBookDTO(b circulation.Book) BookDTO {
	return BookDTO{
		ID:              int64(b.ID),
		Title:           b.Title,
		ISBN:            b.ISBN,
		Year:            b.Year,
		Publisher:       b.Publisher,
		AvailableCopies: b.AvailableCopies,
		ShelfLocation:   b.ShelfLocation,
	}
}

func toBookDTOs(books []circulation.Book) []BookDTO {
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	return dtos
}

func toUserDTO(u circulation.User) UserDTO {
	return UserDTO{ID: int64(u.ID), Name: u.Name}
}

func toLoanDTO(l circulation.Loan) LoanDTO {
	return LoanDTO{
		ID:         int64(l.ID),
		BookID:     int64(l.BookID),
		UserID:     int64(l.UserID),
		LoanDate:   l.LoanDate.String(),
		DueDate:    l.DueDate.String(),
		ReturnedOn: formatDatePtr(l.ReturnedOn),
		Status:     string(l.Status),
	}
}

func toLoanDTOs(loans []circulation.Loan) []LoanDTO {
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	return dtos
}

func toFineDTO(f circulation.Fine) FineDTO {
	return FineDTO{
		ID:          int64(f.ID),
		LoanID:      int64(f.LoanID),
		Amount:      f.Amount.StringFixed(2),
		Status:      string(f.Status),
		GeneratedOn: f.GeneratedOn.String(),
		PaidOn:      formatDatePtr(f.PaidOn),
	}
}

func toFineDTOs(fines []circulation.Fine) []FineDTO {
	dtos := make([]FineDTO, len(fines))
	for i, f := range fines {
		dtos[i] = toFineDTO(f)
	}
	return dtos
}

func toReservationDTO(r circulation.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:         int64(r.ID),
		BookID:     int64(r.BookID),
		UserID:     int64(r.UserID),
		ReservedOn: r.ReservedOn.String(),
		Status:     string(r.Status),
	}
}

func toReservationDTOs(rs []circulation.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toReservationDTO(r)
	}
	return dtos
}

func toReturnReceiptDTO(rc *circulation.ReturnReceipt) ReturnReceiptDTO {
	dto := ReturnReceiptDTO{
		Loan:        toLoanDTO(rc.Loan),
		OverdueDays: rc.OverdueDays,
	}
	if rc.Fine != nil {
		f := toFineDTO(*rc.Fine)
		dto.Fine = &f
	}
	return dto
}

func formatDatePtr(d *circulation.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
