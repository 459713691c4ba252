// internal/middleware/observability.go
package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/collabdesk/internal/metrics"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// MetricsInterceptor records request counts and latency per method
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err).String()
		metrics.RPCDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
		metrics.RPCTotal.WithLabelValues(info.FullMethod, code).Inc()
		return resp, err
	}
}

// LoggingInterceptor writes one structured line per request
func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", GetIPAddressFromContext(ctx)),
		}
		if actor, ok := ActorFromContext(ctx); ok {
			fields = append(fields, zap.String("uid", actor.UID), zap.String("role", string(actor.Role)))
		}

		switch status.Code(err) {
		case codes.OK:
			log.Info("request handled", fields...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			log.Error("request failed", append(fields, zap.Error(err))...)
		default:
			log.Warn("request rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
