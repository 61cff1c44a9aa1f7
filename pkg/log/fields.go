package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Session
	FieldConnID      = "conn_id"
	FieldRoomID      = "room_id"
	FieldTransportID = "transport_id"
	FieldProducerID  = "producer_id"
	FieldConsumerID  = "consumer_id"
	FieldEvent       = "event"

	// Service
	FieldService = "service"
)
