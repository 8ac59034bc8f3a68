package ports

// Metric names understood by Observability implementations.
const (
	MetricRecordsCommitted = "wattflow_records_committed_total"
	MetricSamplesIngested  = "wattflow_samples_ingested_total"
	MetricIngestFailed     = "wattflow_ingest_failed_total"
	MetricAuditFailures    = "wattflow_audit_failures_total"
	MetricMirrorFailures   = "wattflow_mirror_failures_total"

	MetricStoreConnected   = "wattflow_store_connected"
	MetricStoredRecords    = "wattflow_stored_records"
	MetricPubSubClients    = "wattflow_mqtt_clients"
	MetricAuditLogBytes    = "wattflow_audit_log_size_bytes"
	MetricStoreSaveLatency = "wattflow_store_save_latency_seconds"
)
