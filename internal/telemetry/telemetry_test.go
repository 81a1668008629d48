package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestInteractionEvents(t *testing.T) {
	recorder := withRecorder(t)
	events := NewInteractionEvents()

	_, span := events.Start(context.Background(), "toggle", InteractionAttrs{
		ListingKey: "job_ads:o:l",
		Signal:     "favorite",
		ActorID:    "u1",
	})
	RecordResult(span, "failed", errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "ledger.toggle", ended[0].Name())
	assert.Len(t, ended[0].Events(), 1)
}

type row struct {
	ID   uint
	Name string
}

func TestGORMTracingPlugin(t *testing.T) {
	recorder := withRecorder(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Use(GORMTracingPlugin()))
	require.NoError(t, db.AutoMigrate(&row{}))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&row{Name: "a"}).Error)
	var out row
	require.NoError(t, db.WithContext(ctx).First(&out).Error)

	names := map[string]bool{}
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["db.insert"])
	assert.True(t, names["db.select"])
}
