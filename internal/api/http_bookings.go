package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/export"
	"shareit/internal/models"
)

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body models.BookingRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := body.Parse()
	if err != nil {
		s.fail(w, r, domain.NewError(domain.ErrInvalidArgument, err.Error()))
		return
	}

	view, err := s.svc.Bookings.CreateBooking(r.Context(), actingUser(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewBookingResponse(view))
}

func (s *HTTPServer) handleDecideBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	approved, err := strconv.ParseBool(r.URL.Query().Get("approved"))
	if err != nil {
		s.fail(w, r, domain.NewError(domain.ErrInvalidArgument, "approved must be true or false"))
		return
	}

	view, err := s.svc.Bookings.DecideBooking(r.Context(), actingUser(r), id, approved)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewBookingResponse(view))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.svc.Bookings.GetBooking(r.Context(), actingUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewBookingResponse(view))
}

func (s *HTTPServer) handleListBookerBookings(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r.URL.Query(), s.defaultPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.svc.Bookings.ListBookerBookings(r.Context(), actingUser(r), r.URL.Query().Get("state"), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewBookingResponses(views))
}

func (s *HTTPServer) handleListOwnerBookings(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r.URL.Query(), s.defaultPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.svc.Bookings.ListOwnerBookings(r.Context(), actingUser(r), r.URL.Query().Get("state"), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewBookingResponses(views))
}

func (s *HTTPServer) handleExportOwnerBookings(w http.ResponseWriter, r *http.Request) {
	userID := actingUser(r)
	views, err := s.svc.Bookings.ListOwnerBookings(r.Context(), userID, r.URL.Query().Get("state"), models.Page{})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	workbook, err := s.renderExport(views)
	if err != nil {
		s.fail(w, r, fmt.Errorf("export bookings of user %d: %w", userID, err))
		return
	}

	fileName := fmt.Sprintf("bookings_%d_%s.xlsx", userID, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(workbook.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := workbook.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("export interrupted")
	}
}

// pageFromQuery reads from/size. Without either the result is unpaged; a
// missing size falls back to defaultSize.
func pageFromQuery(q url.Values, defaultSize int) (models.Page, error) {
	rawFrom := strings.TrimSpace(q.Get("from"))
	rawSize := strings.TrimSpace(q.Get("size"))
	if rawFrom == "" && rawSize == "" {
		return models.Page{}, nil
	}

	from, size := 0, defaultSize
	var err error
	if rawFrom != "" {
		if from, err = strconv.Atoi(rawFrom); err != nil {
			return models.Page{}, domain.Errorf(domain.ErrInvalidArgument, "invalid from: %s", rawFrom)
		}
	}
	if rawSize != "" {
		if size, err = strconv.Atoi(rawSize); err != nil {
			return models.Page{}, domain.Errorf(domain.ErrInvalidArgument, "invalid size: %s", rawSize)
		}
	}
	return models.NewPage(from, size), nil
}
