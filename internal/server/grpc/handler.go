package grpc

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.stats.Collect(ctx)
	if err != nil {
		s.logger.Error(ctx, "error collecting statistics", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	out, err := statsToStruct(st)
	if err != nil {
		s.logger.Error(ctx, "error encoding statistics", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func statsToStruct(st *models.Stats) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"total_users":    st.TotalUsers,
		"paired_pairs":   st.PairedPairs,
		"total_messages": st.TotalMessages,
		"searching":      st.Searching,
		"idle":           st.Idle,
	}
	if st.TopSender != nil {
		fields["top_sender"] = map[string]interface{}{
			"user_id":       st.TopSender.UserID,
			"message_count": st.TopSender.MessageCount,
		}
	}
	return structpb.NewStruct(fields)
}

// StatsFromStruct is the inverse of the GetStats encoding. Numbers travel as
// doubles, which is exact for any count this service will reach.
func StatsFromStruct(s *structpb.Struct) *models.Stats {
	f := s.GetFields()
	num := func(m map[string]*structpb.Value, k string) int64 {
		return int64(m[k].GetNumberValue())
	}

	st := &models.Stats{
		TotalUsers:    num(f, "total_users"),
		PairedPairs:   num(f, "paired_pairs"),
		TotalMessages: num(f, "total_messages"),
		Searching:     num(f, "searching"),
		Idle:          num(f, "idle"),
	}
	if top := f["top_sender"].GetStructValue(); top != nil {
		st.TopSender = &models.Sender{
			UserID:       num(top.GetFields(), "user_id"),
			MessageCount: num(top.GetFields(), "message_count"),
		}
	}
	return st
}
