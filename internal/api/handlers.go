package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"shareit/internal/models"
	"shareit/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "shareit.booking.v1.BookingService"

const (
	methodCreateBooking      = "/" + bookingServiceName + "/CreateBooking"
	methodDecideBooking      = "/" + bookingServiceName + "/DecideBooking"
	methodGetBooking         = "/" + bookingServiceName + "/GetBooking"
	methodListBookerBookings = "/" + bookingServiceName + "/ListBookerBookings"
	methodListOwnerBookings  = "/" + bookingServiceName + "/ListOwnerBookings"
)

// BookingServiceServer is the gRPC surface of the booking engine. Requests and
// responses are google.protobuf.Struct values with the same fields as the JSON API.
type BookingServiceServer interface {
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DecideBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookerBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListOwnerBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type bookingCall func(srv BookingServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call bookingCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateBooking", Handler: unaryHandler(methodCreateBooking, BookingServiceServer.CreateBooking)},
		{MethodName: "DecideBooking", Handler: unaryHandler(methodDecideBooking, BookingServiceServer.DecideBooking)},
		{MethodName: "GetBooking", Handler: unaryHandler(methodGetBooking, BookingServiceServer.GetBooking)},
		{MethodName: "ListBookerBookings", Handler: unaryHandler(methodListBookerBookings, BookingServiceServer.ListBookerBookings)},
		{MethodName: "ListOwnerBookings", Handler: unaryHandler(methodListOwnerBookings, BookingServiceServer.ListOwnerBookings)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shareit/booking/v1/booking.proto",
}

// RegisterBookingServiceServer attaches srv to s.
func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

// BookingGRPCService adapts service.BookingService to BookingServiceServer.
type BookingGRPCService struct {
	bookings        *service.BookingService
	identity        *IdentityResolver
	defaultPageSize int
}

func NewBookingGRPCService(bookings *service.BookingService, identity *IdentityResolver, defaultPageSize int) *BookingGRPCService {
	return &BookingGRPCService{bookings: bookings, identity: identity, defaultPageSize: defaultPageSize}
}

func (s *BookingGRPCService) actingUser(ctx context.Context) (int64, error) {
	userID, err := s.identity.ResolveMetadata(ctx)
	if err != nil {
		if s.identity.usesTokens() {
			return 0, status.Error(codes.Unauthenticated, err.Error())
		}
		return 0, status.Error(codes.InvalidArgument, err.Error())
	}
	return userID, nil
}

func (s *BookingGRPCService) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.actingUser(ctx)
	if err != nil {
		return nil, err
	}

	fields := in.GetFields()
	itemID, err := intField(fields, "item_id")
	if err != nil {
		return nil, err
	}
	body := models.BookingRequest{
		ItemID: itemID,
		Start:  fields["start"].GetStringValue(),
		End:    fields["end"].GetStringValue(),
	}
	req, err := body.Parse()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.bookings.CreateBooking(ctx, userID, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(models.NewBookingResponse(view))
}

func (s *BookingGRPCService) DecideBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.actingUser(ctx)
	if err != nil {
		return nil, err
	}

	fields := in.GetFields()
	approved, ok := fields["approved"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "approved must be a boolean")
	}

	bookingID, err := intField(fields, "booking_id")
	if err != nil {
		return nil, err
	}

	view, err := s.bookings.DecideBooking(ctx, userID, bookingID, approved.BoolValue)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(models.NewBookingResponse(view))
}

func (s *BookingGRPCService) GetBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.actingUser(ctx)
	if err != nil {
		return nil, err
	}

	bookingID, err := intField(in.GetFields(), "booking_id")
	if err != nil {
		return nil, err
	}

	view, err := s.bookings.GetBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(models.NewBookingResponse(view))
}

func (s *BookingGRPCService) ListBookerBookings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.list(ctx, in, s.bookings.ListBookerBookings)
}

func (s *BookingGRPCService) ListOwnerBookings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.list(ctx, in, s.bookings.ListOwnerBookings)
}

type listFunc func(ctx context.Context, userID int64, state string, page models.Page) ([]*models.BookingView, error)

func (s *BookingGRPCService) list(ctx context.Context, in *structpb.Struct, fn listFunc) (*structpb.Struct, error) {
	userID, err := s.actingUser(ctx)
	if err != nil {
		return nil, err
	}

	fields := in.GetFields()
	page := models.Page{}
	_, hasFrom := fields["from"]
	_, hasSize := fields["size"]
	if hasFrom || hasSize {
		from, err := intField(fields, "from")
		if err != nil {
			return nil, err
		}
		size := int64(s.defaultPageSize)
		if hasSize {
			if size, err = intField(fields, "size"); err != nil {
				return nil, err
			}
		}
		page = models.NewPage(int(from), int(size))
	}

	views, err := fn(ctx, userID, fields["state"].GetStringValue(), page)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"bookings": models.NewBookingResponses(views)})
}

// maxExactInt is the largest magnitude a JSON number holds without losing precision.
const maxExactInt = 1 << 53

// intField reads a whole number field. A missing field reads as zero.
func intField(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	f := num.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number", name)
	}
	return int64(f), nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, grpcError(fmt.Errorf("marshal response: %w", err))
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, grpcError(fmt.Errorf("convert response: %w", err))
	}
	return out, nil
}

var _ BookingServiceServer = (*BookingGRPCService)(nil)
