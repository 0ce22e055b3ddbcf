package models

import (
	"fmt"
	"strings"
	"time"
)

// ParseTimestamp reads a zone-less TimestampLayout value in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, expected %s", s, TimestampLayout)
	}
	return t, nil
}

// FormatTimestamp renders t in the local zone without offset.
func FormatTimestamp(t time.Time) string {
	return t.In(time.Local).Format(TimestampLayout)
}

// BookingRequest is the wire form of NewBooking.
type BookingRequest struct {
	ItemID int64  `json:"item_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Parse converts the request. Empty times stay zero so that the engine
// reports them as missing.
func (r BookingRequest) Parse() (NewBooking, error) {
	req := NewBooking{ItemID: r.ItemID}
	var err error
	if strings.TrimSpace(r.Start) != "" {
		if req.Start, err = ParseTimestamp(r.Start); err != nil {
			return NewBooking{}, err
		}
	}
	if strings.TrimSpace(r.End) != "" {
		if req.End, err = ParseTimestamp(r.End); err != nil {
			return NewBooking{}, err
		}
	}
	return req, nil
}

// BookingResponse is the wire form of BookingView.
type BookingResponse struct {
	ID     int64         `json:"id"`
	Start  string        `json:"start"`
	End    string        `json:"end"`
	Status BookingStatus `json:"status"`
	Booker UserSummary   `json:"booker"`
	Item   ItemSummary   `json:"item"`
}

func NewBookingResponse(v *BookingView) BookingResponse {
	return BookingResponse{
		ID:     v.ID,
		Start:  FormatTimestamp(v.Start),
		End:    FormatTimestamp(v.End),
		Status: v.Status,
		Booker: v.Booker,
		Item:   v.Item,
	}
}

func NewBookingResponses(views []*BookingView) []BookingResponse {
	out := make([]BookingResponse, 0, len(views))
	for _, v := range views {
		out = append(out, NewBookingResponse(v))
	}
	return out
}
