package database

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/TableOrder/pkg/database"

var slowQueryCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging configures slow operation detection for both SQL
// queries and Redis commands. A zero threshold disables it.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	slowQueryCfg.mu.Lock()
	defer slowQueryCfg.mu.Unlock()
	slowQueryCfg.threshold = threshold
	slowQueryCfg.logger = logger
}

func getSlowQueryConfig() (time.Duration, *slog.Logger) {
	slowQueryCfg.mu.RLock()
	defer slowQueryCfg.mu.RUnlock()
	return slowQueryCfg.threshold, slowQueryCfg.logger
}

func logIfSlow(ctx context.Context, msg string, start time.Time, err error, attrs ...any) {
	threshold, logger := getSlowQueryConfig()
	if threshold <= 0 || logger == nil {
		return
	}
	elapsed := time.Since(start)
	if elapsed < threshold {
		return
	}
	attrs = append(attrs, slog.Duration("duration", elapsed))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.WarnContext(ctx, msg, attrs...)
}

// TraceQuery starts a span for a SQL operation. The returned function must be
// called when the operation completes:
//
//	ctx, end := database.TraceQuery(ctx, "GetAttempt", "SELECT ... WHERE id = $1")
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		logIfSlow(ctx, "slow query detected", start, err,
			slog.String("operation", operation),
			slog.String("statement", statement),
		)
	}
}

// RedisTracingHook is a go-redis hook that opens a span per command or
// pipeline and reports slow commands. redis.Nil is not treated as an error.
type RedisTracingHook struct{}

var _ redis.Hook = RedisTracingHook{}

func (RedisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (RedisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		ctx, span := otel.Tracer(tracerName).Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", cmd.Name()),
			),
		)
		err := next(ctx, cmd)
		endRedisSpan(span, err)
		logIfSlow(ctx, "slow redis command detected", start, redisErr(err),
			slog.String("command", cmd.Name()),
		)
		return err
	}
}

func (RedisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		names := make([]string, 0, len(cmds))
		for _, c := range cmds {
			names = append(names, c.Name())
		}
		ctx, span := otel.Tracer(tracerName).Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", "pipeline"),
				attribute.Int("db.redis.num_cmd", len(cmds)),
			),
		)
		err := next(ctx, cmds)
		endRedisSpan(span, err)
		logIfSlow(ctx, "slow redis pipeline detected", start, redisErr(err),
			slog.String("commands", strings.Join(names, " ")),
		)
		return err
	}
}

func redisErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func endRedisSpan(span trace.Span, err error) {
	if err = redisErr(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
