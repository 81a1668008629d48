package metrics

import "time"

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordRateLimitExceeded records a rejected request
func RecordRateLimitExceeded(endpoint, method string) {
	Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// RecordDatabaseQuery records a database statement
func RecordDatabaseQuery(queryType, table string, duration time.Duration, err error) {
	m := Get()
	m.DatabaseQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
	m.DatabaseQueriesTotal.WithLabelValues(queryType, table, status(err)).Inc()
}

// RecordRedisOperation records a Redis round trip
func RecordRedisOperation(operation string, duration time.Duration, err error) {
	m := Get()
	m.RedisOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.RedisOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordLedgerOperation records the outcome of one ledger call
func RecordLedgerOperation(operation, signal, result string, duration time.Duration) {
	m := Get()
	m.LedgerOperationsTotal.WithLabelValues(operation, signal, result).Inc()
	m.LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordCoalescedToggle(signal string) {
	Get().LedgerCoalescedTotal.WithLabelValues(signal).Inc()
}

// TrackSubscription adjusts the active subscription gauge by delta
func TrackSubscription(signal string, delta float64) {
	Get().LedgerSubscriptions.WithLabelValues(signal).Add(delta)
}

func RecordConflictRetry(backend string) {
	Get().StoreConflictRetriesTotal.WithLabelValues(backend).Inc()
}

// RecordBrokerMessage counts a change notification; direction is "publish" or "receive"
func RecordBrokerMessage(backend, direction string, err error) {
	Get().BrokerMessagesTotal.WithLabelValues(backend, direction, status(err)).Inc()
}

func RecordWebSocketMessage(direction, messageType string) {
	Get().WebSocketMessages.WithLabelValues(direction, messageType).Inc()
}

// TrackWebSocketConnection adjusts the open connection gauge by delta
func TrackWebSocketConnection(authenticated bool, delta float64) {
	label := "false"
	if authenticated {
		label = "true"
	}
	Get().WebSocketConnections.WithLabelValues(label).Add(delta)
}

// RecordError records an error
func RecordError(errorType, endpoint string) {
	Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
