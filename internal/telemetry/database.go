package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/listingboard/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	spanKey      = "otel:span"
	startTimeKey = "otel:startTime"
	operationKey = "otel:operation"
)

// GORMTracingPlugin returns a GORM plugin that traces database operations and
// records them in the database query metrics.
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{
		tracer: otel.Tracer("gorm"),
	}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	befores := []struct {
		name string
		err  error
	}{
		{"query", cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT"))},
		{"create", cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT"))},
		{"update", cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE"))},
		{"delete", cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE"))},
		{"raw", cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("RAW"))},
		{"row", cb.Row().Before("gorm:row").Register("telemetry:before_row", p.before("ROW"))},
	}
	afters := []struct {
		name string
		err  error
	}{
		{"query", cb.Query().After("gorm:query").Register("telemetry:after_query", p.after)},
		{"create", cb.Create().After("gorm:create").Register("telemetry:after_create", p.after)},
		{"update", cb.Update().After("gorm:update").Register("telemetry:after_update", p.after)},
		{"delete", cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.after)},
		{"raw", cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.after)},
		{"row", cb.Row().After("gorm:row").Register("telemetry:after_row", p.after)},
	}

	for _, r := range append(befores, afters...) {
		if r.err != nil {
			return fmt.Errorf("failed to register %s callback: %w", r.name, r.err)
		}
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		db.InstanceSet(startTimeKey, time.Now())
		db.InstanceSet(operationKey, operation)

		ctx := db.Statement.Context
		if ctx == nil {
			return
		}

		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, db.Dialector.Name()),
				attribute.String(dbTableKey, tableName(db)),
				attribute.String(dbOperationKey, operation),
			),
		)
		db.InstanceSet(spanKey, span)
	}
}

func (p *tracingPlugin) after(db *gorm.DB) {
	var duration time.Duration
	if startTimeRaw, ok := db.InstanceGet(startTimeKey); ok {
		if startTime, ok := startTimeRaw.(time.Time); ok {
			duration = time.Since(startTime)
		}
	}
	operation := "UNKNOWN"
	if opRaw, ok := db.InstanceGet(operationKey); ok {
		operation, _ = opRaw.(string)
	}

	err := db.Error
	if err == gorm.ErrRecordNotFound {
		err = nil
	}
	metrics.RecordDatabaseQuery(operation, tableName(db), duration, err)

	spanRaw, exists := db.InstanceGet(spanKey)
	if !exists {
		return
	}
	span, ok := spanRaw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int64("db.duration_ms", duration.Milliseconds()))

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > 500 {
			sql = sql[:500] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}
	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

func tableName(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}
